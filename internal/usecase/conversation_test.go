package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
)

func TestConversationMergeHistoryKeepsLiveMessages(t *testing.T) {
	c := NewConversation(time.Hour, 10, newFakeClock().Now)
	c.SetSession("s1")

	c.AppendMessage(textMsg("live", domain.RoleUser, "sent while loading"))
	c.AppendMessage(textMsg("h2", domain.RoleAssistant, "dup"))

	c.MergeHistory([]domain.Message{
		textMsg("h1", domain.RoleUser, "old q"),
		textMsg("h2", domain.RoleAssistant, "old a"),
	})

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "h1", msgs[0].ID)
	assert.Equal(t, "old a", msgs[1].Text(), "history wins for shared ids")
	assert.Equal(t, "live", msgs[2].ID)
}

func TestConversationAppendReplacesByID(t *testing.T) {
	c := NewConversation(time.Hour, 10, nil)
	c.SetSession("s1")
	c.CacheTranscript()

	c.AppendMessage(textMsg("a", domain.RoleAssistant, "part"))
	c.AppendMessage(textMsg("a", domain.RoleAssistant, "partial"))
	assert.Equal(t, 1, c.Len())

	entry, ok := c.Cache().Get("s1")
	require.True(t, ok)
	require.Len(t, entry.Messages, 1)
	assert.Equal(t, "partial", entry.Messages[0].Text())
}

func TestConversationCachePartial(t *testing.T) {
	c := NewConversation(time.Hour, 10, nil)
	c.SetSession("s1")
	c.AppendMessage(textMsg("u", domain.RoleUser, "q"))

	c.CachePartial(textMsg("p", domain.RoleAssistant, "half"))
	entry, ok := c.Cache().Get("s1")
	require.True(t, ok)
	require.Len(t, entry.Messages, 2)
	assert.Equal(t, 1, c.Len(), "partial is not added to the transcript")

	c.CachePartial(textMsg("p", domain.RoleAssistant, "half more"))
	entry, _ = c.Cache().Get("s1")
	require.Len(t, entry.Messages, 2)
	assert.Equal(t, "half more", entry.Messages[1].Text())
}

func TestConversationForgetAndSnapshot(t *testing.T) {
	c := NewConversation(time.Hour, 10, nil)
	c.SetSession("s1")
	c.Drafts().Set("s1", "draft")
	c.Drafts().Set("s2", "keep")
	c.AppendMessage(textMsg("u", domain.RoleUser, "q"))
	c.CacheTranscript()

	snap := c.Snapshot()
	assert.Len(t, snap.Caches, 1)
	assert.Len(t, snap.Drafts, 2)

	c.Forget("s1")
	assert.Empty(t, c.SessionID())
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Cache().Len())
	assert.Empty(t, c.Drafts().Get("s1"))

	c.Restore(snap)
	assert.Equal(t, 1, c.Cache().Len())
	assert.Equal(t, "draft", c.Drafts().Get("s1"))
	c.Restore(nil)
}
