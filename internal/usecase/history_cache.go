package usecase

import (
	"sort"
	"time"

	"chatsync/internal/domain"
)

// Default cache bounds.
const (
	DefaultCacheTTL    = time.Hour
	DefaultMaxSessions = 10
)

// HistoryCache holds transformed history per session. An entry is fresh
// while now - CachedAt < ttl; beyond maxSessions entries the least recently
// cached are evicted. It is not safe for concurrent use.
type HistoryCache struct {
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
	entries     map[string]*domain.CachedHistory
}

// NewHistoryCache creates an empty cache. Zero bounds take the defaults.
func NewHistoryCache(ttl time.Duration, maxSessions int, now func() time.Time) *HistoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if now == nil {
		now = time.Now
	}
	return &HistoryCache{ttl: ttl, maxSessions: maxSessions, now: now, entries: map[string]*domain.CachedHistory{}}
}

// Get returns a fresh entry for sessionID.
func (c *HistoryCache) Get(sessionID string) (domain.CachedHistory, bool) {
	e, ok := c.entries[sessionID]
	if !ok || e.Expired(c.now(), c.ttl) {
		return domain.CachedHistory{}, false
	}
	return copyEntry(e), true
}

// GetStale returns the entry for sessionID regardless of age.
func (c *HistoryCache) GetStale(sessionID string) (domain.CachedHistory, bool) {
	e, ok := c.entries[sessionID]
	if !ok {
		return domain.CachedHistory{}, false
	}
	return copyEntry(e), true
}

// Put replaces the entry for sessionID and stamps it with the current time.
func (c *HistoryCache) Put(sessionID string, msgs []domain.Message) {
	e := &domain.CachedHistory{
		SessionID: sessionID,
		Messages:  append([]domain.Message(nil), msgs...),
		CachedAt:  c.now(),
	}
	if n := len(msgs); n > 0 {
		e.LastMessageID = msgs[n-1].ID
	}
	c.entries[sessionID] = e
	c.evict()
}

// Upsert adds msg to an existing entry, replacing any message with the same
// id. A fresh entry has its CachedAt refreshed; an expired one stays expired
// so the next attach refetches. It reports whether an entry existed.
func (c *HistoryCache) Upsert(sessionID string, msg domain.Message) bool {
	e, ok := c.entries[sessionID]
	if !ok {
		return false
	}
	replaced := false
	for i := range e.Messages {
		if e.Messages[i].ID == msg.ID {
			e.Messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		e.Messages = append(e.Messages, msg)
		e.LastMessageID = msg.ID
	}
	if now := c.now(); !e.Expired(now, c.ttl) {
		e.CachedAt = now
	}
	return true
}

// Delete drops the entry for sessionID.
func (c *HistoryCache) Delete(sessionID string) {
	delete(c.entries, sessionID)
}

// Prune removes expired entries and returns how many were dropped.
func (c *HistoryCache) Prune() int {
	now := c.now()
	n := 0
	for id, e := range c.entries {
		if e.Expired(now, c.ttl) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of entries, fresh or not.
func (c *HistoryCache) Len() int { return len(c.entries) }

// Entries returns copies of all entries, most recently cached first.
func (c *HistoryCache) Entries() []domain.CachedHistory {
	out := make([]domain.CachedHistory, 0, len(c.entries))
	for _, e := range c.sorted() {
		out = append(out, copyEntry(e))
	}
	return out
}

// Restore loads persisted entries, keeping their CachedAt stamps. An entry
// already held wins unless the restored one is newer.
func (c *HistoryCache) Restore(entries []domain.CachedHistory) {
	for i := range entries {
		e := copyEntry(&entries[i])
		if cur, ok := c.entries[e.SessionID]; ok && !e.CachedAt.After(cur.CachedAt) {
			continue
		}
		c.entries[e.SessionID] = &e
	}
	c.evict()
}

func (c *HistoryCache) sorted() []*domain.CachedHistory {
	list := make([]*domain.CachedHistory, 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CachedAt.Equal(list[j].CachedAt) {
			return list[i].SessionID < list[j].SessionID
		}
		return list[i].CachedAt.After(list[j].CachedAt)
	})
	return list
}

func (c *HistoryCache) evict() {
	if len(c.entries) <= c.maxSessions {
		return
	}
	for _, e := range c.sorted()[c.maxSessions:] {
		delete(c.entries, e.SessionID)
	}
}

func copyEntry(e *domain.CachedHistory) domain.CachedHistory {
	out := *e
	out.Messages = append([]domain.Message(nil), e.Messages...)
	return out
}
