package usecase

import (
	"time"

	"chatsync/internal/domain"
)

// ToolTracker keeps one ToolExecution per tool_use_id for the current turn.
// Every update upserts: events may arrive for an id whose start was never
// seen. It is not safe for concurrent use.
type ToolTracker struct {
	now     func() time.Time
	newID   func() string
	records map[string]*domain.ToolExecution
	order   []string
}

// NewToolTracker creates an empty tracker.
func NewToolTracker(now func() time.Time, newID func() string) *ToolTracker {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = NewID
	}
	return &ToolTracker{now: now, newID: newID, records: map[string]*domain.ToolExecution{}}
}

func (t *ToolTracker) upsert(toolUseID string) *domain.ToolExecution {
	if rec, ok := t.records[toolUseID]; ok {
		return rec
	}
	rec := &domain.ToolExecution{
		ID:        t.newID(),
		ToolUseID: toolUseID,
		Name:      domain.UnknownToolName,
		Status:    domain.ToolPending,
		StartTime: t.now(),
	}
	t.records[toolUseID] = rec
	t.order = append(t.order, toolUseID)
	return rec
}

// Start records a tool_use_start.
func (t *ToolTracker) Start(toolUseID, name string, input map[string]any) domain.ToolExecution {
	rec := t.upsert(toolUseID)
	if name != "" {
		rec.Name = name
	}
	if input != nil {
		rec.Input = input
	}
	if !rec.Status.Done() {
		rec.Status = domain.ToolExecuting
	}
	return *rec
}

// Executing records a tool_executing. input may be nil.
func (t *ToolTracker) Executing(toolUseID string, input map[string]any) domain.ToolExecution {
	rec := t.upsert(toolUseID)
	if input != nil {
		rec.Input = input
	}
	if !rec.Status.Done() {
		rec.Status = domain.ToolExecuting
	}
	return *rec
}

// Finish records a tool_result.
func (t *ToolTracker) Finish(toolUseID string, success bool, output string) domain.ToolExecution {
	rec := t.upsert(toolUseID)
	rec.Output = output
	if success {
		rec.Status = domain.ToolSuccess
		rec.Error = ""
	} else {
		rec.Status = domain.ToolError
		rec.Error = output
	}
	rec.EndTime = t.now()
	return *rec
}

// Get returns the record for toolUseID.
func (t *ToolTracker) Get(toolUseID string) (domain.ToolExecution, bool) {
	rec, ok := t.records[toolUseID]
	if !ok {
		return domain.ToolExecution{}, false
	}
	return *rec, true
}

// All returns copies of every record in first-seen order.
func (t *ToolTracker) All() []domain.ToolExecution {
	out := make([]domain.ToolExecution, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.records[id])
	}
	return out
}

// Len returns the number of tracked invocations.
func (t *ToolTracker) Len() int { return len(t.order) }

// Reset clears every record; called when a new turn starts.
func (t *ToolTracker) Reset() {
	t.records = map[string]*domain.ToolExecution{}
	t.order = nil
}
