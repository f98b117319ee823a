package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
)

func TestResumeCoordinatorOncePerAttachment(t *testing.T) {
	r := NewResumeCoordinator()
	r.Attach("s1")

	assert.False(t, r.OnConnected("s1"), "not armed")

	r.Arm("s1", true)
	assert.Equal(t, ResumePending, r.State())
	assert.True(t, r.OnConnected("s1"))
	assert.False(t, r.OnConnected("s1"), "already requested")

	r.Resolve()
	assert.Equal(t, ResumeResolved, r.State())
	r.Arm("s1", true)
	assert.False(t, r.OnConnected("s1"), "resolved attachment is not re-armed")

	r.Attach("s1")
	r.Arm("s1", true)
	assert.True(t, r.OnConnected("s1"), "new attachment")
}

func TestResumeCoordinatorIgnoresOtherSessions(t *testing.T) {
	r := NewResumeCoordinator()
	r.Attach("s1")
	r.Arm("s2", true)
	assert.Equal(t, ResumeIdle, r.State())

	r.Arm("s1", false)
	assert.Equal(t, ResumeIdle, r.State())

	r.Arm("s1", true)
	assert.False(t, r.OnConnected("s2"))
}

func TestResumeCoordinatorSendFailedRetries(t *testing.T) {
	r := NewResumeCoordinator()
	r.Attach("s1")
	r.Arm("s1", true)
	require.True(t, r.OnConnected("s1"))

	r.SendFailed()
	assert.Equal(t, "pending", r.State().String())
	assert.True(t, r.OnConnected("s1"))
}

func TestQuestionGate(t *testing.T) {
	g := NewQuestionGate()
	_, err := g.Take()
	assert.ErrorIs(t, err, domain.ErrNoPendingQuestion)
	assert.False(t, g.Blocked())

	q := domain.PendingQuestion{ToolUseID: "t1", Questions: []domain.Question{{Question: "Proceed?"}}}
	g.Set(q)
	assert.True(t, g.Blocked())

	got, err := g.Take()
	require.NoError(t, err)
	assert.Equal(t, q, got)
	assert.False(t, g.Blocked())

	g.Rearm(got)
	p, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, "t1", p.ToolUseID)

	newer := domain.PendingQuestion{ToolUseID: "t2"}
	g.Set(newer)
	g.Rearm(got)
	p, _ = g.Pending()
	assert.Equal(t, "t2", p.ToolUseID, "rearm keeps a newer question")

	g.Clear()
	assert.False(t, g.Blocked())
}
