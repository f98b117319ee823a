package usecase

import "chatsync/internal/domain"

// QuestionGate holds at most one pending agent question. While one is set
// the client refuses new chat sends.
type QuestionGate struct {
	pending *domain.PendingQuestion
}

// NewQuestionGate creates an open gate.
func NewQuestionGate() *QuestionGate {
	return &QuestionGate{}
}

// Set replaces any pending question.
func (g *QuestionGate) Set(q domain.PendingQuestion) {
	g.pending = &q
}

// Pending returns the pending question.
func (g *QuestionGate) Pending() (domain.PendingQuestion, bool) {
	if g.pending == nil {
		return domain.PendingQuestion{}, false
	}
	return *g.pending, true
}

// Blocked reports whether a question is pending.
func (g *QuestionGate) Blocked() bool { return g.pending != nil }

// Take clears and returns the pending question.
func (g *QuestionGate) Take() (domain.PendingQuestion, error) {
	if g.pending == nil {
		return domain.PendingQuestion{}, domain.ErrNoPendingQuestion
	}
	q := *g.pending
	g.pending = nil
	return q, nil
}

// Rearm restores a question taken by Take when its answer could not be sent.
// A question set in the meantime is kept.
func (g *QuestionGate) Rearm(q domain.PendingQuestion) {
	if g.pending == nil {
		g.pending = &q
	}
}

func (g *QuestionGate) Clear() { g.pending = nil }
