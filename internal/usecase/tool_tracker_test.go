package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
)

func TestToolTrackerLifecycle(t *testing.T) {
	clock := newFakeClock()
	tr := NewToolTracker(clock.Now, seqIDs("x"))

	te := tr.Start("t1", "Bash", map[string]any{"cmd": "ls"})
	assert.Equal(t, domain.ToolExecuting, te.Status)
	assert.Equal(t, "Bash", te.Name)

	tr.Executing("t1", nil)
	clock.Advance(2 * time.Second)
	te = tr.Finish("t1", true, "a.go")

	assert.Equal(t, domain.ToolSuccess, te.Status)
	assert.Equal(t, "a.go", te.Output)
	assert.Empty(t, te.Error)
	assert.Equal(t, 2*time.Second, te.Duration())
	assert.Equal(t, map[string]any{"cmd": "ls"}, te.Input)
}

func TestToolTrackerUpsertsUnseenIDs(t *testing.T) {
	tr := NewToolTracker(nil, seqIDs("x"))

	te := tr.Finish("late", false, "boom")
	assert.Equal(t, domain.UnknownToolName, te.Name)
	assert.Equal(t, domain.ToolError, te.Status)
	assert.Equal(t, "boom", te.Error)

	// A start arriving after the result keeps the terminal status.
	te = tr.Start("late", "Grep", nil)
	assert.Equal(t, "Grep", te.Name)
	assert.Equal(t, domain.ToolError, te.Status)

	te = tr.Executing("other", map[string]any{"q": 1})
	assert.Equal(t, domain.ToolExecuting, te.Status)
	assert.Equal(t, domain.UnknownToolName, te.Name)

	require.Equal(t, 2, tr.Len())
	all := tr.All()
	assert.Equal(t, "late", all[0].ToolUseID)
	assert.Equal(t, "other", all[1].ToolUseID)

	tr.Reset()
	assert.Zero(t, tr.Len())
	_, ok := tr.Get("late")
	assert.False(t, ok)
}
