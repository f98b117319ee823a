package domain

import "time"

// ToolStatus is the lifecycle state of one tool invocation.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolExecuting ToolStatus = "executing"
	ToolSuccess   ToolStatus = "success"
	ToolError     ToolStatus = "error"
)

// Done reports whether the status is terminal.
func (s ToolStatus) Done() bool {
	return s == ToolSuccess || s == ToolError
}

// UnknownToolName is used when a record is created before the start event
// that would have carried the tool's name.
const UnknownToolName = "unknown"

// ToolExecution tracks one tool invocation. Lookups use ToolUseID.
type ToolExecution struct {
	ID        string
	ToolUseID string
	Name      string
	Input     map[string]any
	Status    ToolStatus
	Output    string
	Error     string
	StartTime time.Time
	EndTime   time.Time // zero until the invocation finishes
}

// Duration returns the elapsed run time, or zero while still running.
func (t ToolExecution) Duration() time.Duration {
	if t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}
