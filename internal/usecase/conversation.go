package usecase

import (
	"time"

	"chatsync/internal/domain"
)

// Conversation owns the transcript of the active session together with the
// history cache and drafts. Every mutation of that state goes through its
// methods. It is not safe for concurrent use; Client serializes access.
type Conversation struct {
	sessionID string
	messages  []domain.Message
	cache     *HistoryCache
	drafts    *DraftStore
}

// NewConversation creates an empty conversation.
func NewConversation(cacheTTL time.Duration, maxSessions int, now func() time.Time) *Conversation {
	return &Conversation{
		cache:  NewHistoryCache(cacheTTL, maxSessions, now),
		drafts: NewDraftStore(),
	}
}

func (c *Conversation) SessionID() string { return c.sessionID }

// SetSession makes sessionID active with an empty transcript.
func (c *Conversation) SetSession(sessionID string) {
	c.sessionID = sessionID
	c.messages = nil
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []domain.Message {
	return append([]domain.Message(nil), c.messages...)
}

func (c *Conversation) Len() int { return len(c.messages) }

// AppendMessage appends msg to the transcript, replacing a message with the
// same id, and mirrors it into the session's cache entry if one exists.
func (c *Conversation) AppendMessage(msg domain.Message) {
	replaced := false
	for i := range c.messages {
		if c.messages[i].ID == msg.ID {
			c.messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		c.messages = append(c.messages, msg)
	}
	if c.sessionID != "" {
		c.cache.Upsert(c.sessionID, msg)
	}
}

// ReplaceMessages installs msgs as the transcript.
func (c *Conversation) ReplaceMessages(msgs []domain.Message) {
	c.messages = append([]domain.Message(nil), msgs...)
}

// MergeHistory installs history as the transcript, keeping live messages
// appended while it was loading that history does not already contain.
func (c *Conversation) MergeHistory(history []domain.Message) {
	seen := make(map[string]bool, len(history))
	merged := make([]domain.Message, 0, len(history)+len(c.messages))
	for _, m := range history {
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range c.messages {
		if !seen[m.ID] {
			merged = append(merged, m)
		}
	}
	c.messages = merged
}

// CachePartial stores an in-flight message in the session's cache entry,
// creating the entry from the transcript if needed.
func (c *Conversation) CachePartial(msg domain.Message) {
	if c.sessionID == "" {
		return
	}
	if !c.cache.Upsert(c.sessionID, msg) {
		c.cache.Put(c.sessionID, append(c.Messages(), msg))
	}
}

// CacheTranscript stores the transcript as the session's cache entry.
func (c *Conversation) CacheTranscript() {
	if c.sessionID != "" {
		c.cache.Put(c.sessionID, c.messages)
	}
}

// Forget drops everything held for sessionID.
func (c *Conversation) Forget(sessionID string) {
	c.cache.Delete(sessionID)
	c.drafts.Clear(sessionID)
	if c.sessionID == sessionID {
		c.sessionID = ""
		c.messages = nil
	}
}

func (c *Conversation) Cache() *HistoryCache { return c.cache }

func (c *Conversation) Drafts() *DraftStore { return c.drafts }

// Snapshot captures the persistable state.
func (c *Conversation) Snapshot() *domain.Snapshot {
	return &domain.Snapshot{Caches: c.cache.Entries(), Drafts: c.drafts.All()}
}

// Restore merges a persisted snapshot.
func (c *Conversation) Restore(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	c.cache.Restore(snap.Caches)
	c.drafts.Restore(snap.Drafts)
}
