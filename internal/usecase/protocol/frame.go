// Package protocol maps websocket frames to typed events and commands.
package protocol

import (
	"strings"

	"chatsync/internal/domain"
)

// Kind is the "type" discriminator carried by every frame.
type Kind string

// Server to client kinds.
const (
	KindThinking        Kind = "thinking"
	KindText            Kind = "text"
	KindToolUseStart    Kind = "tool_use_start"
	KindToolExecuting   Kind = "tool_executing"
	KindToolResult      Kind = "tool_result"
	KindResult          Kind = "result"
	KindError           Kind = "error"
	KindInterrupted     Kind = "interrupted"
	KindResumeStarted   Kind = "resume_started"
	KindResumeNotNeeded Kind = "resume_not_needed"
	KindResumeFailed    Kind = "resume_failed"
	KindUserQuestion    Kind = "user_question"
)

// Client to server kinds.
const (
	KindChat           Kind = "chat"
	KindInterrupt      Kind = "interrupt"
	KindResume         Kind = "resume"
	KindQuestionAnswer Kind = "question_answer"
)

// CodeSessionNotFound is the error frame code the server uses for a missing session.
const CodeSessionNotFound = "SESSION_NOT_FOUND"

// Event is an inbound server frame. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

type (
	// Thinking marks the start of agent reasoning.
	Thinking struct{}

	// Text is an incremental assistant text fragment.
	Text struct {
		Content string
	}

	// ToolUseStart announces a tool invocation.
	ToolUseStart struct {
		ToolUseID string
		Name      string
		Input     map[string]any
	}

	// ToolExecuting reports that a tool invocation is running.
	ToolExecuting struct {
		ToolUseID string
		Input     map[string]any // nil when the frame carried none
	}

	// ToolResult reports a finished tool invocation.
	ToolResult struct {
		ToolUseID string
		Success   bool
		Output    string
	}

	// Result closes an assistant turn.
	Result struct {
		Usage *domain.Usage
		Cost  *float64
	}

	// Error is a turn level error, or a missing-session signal.
	Error struct {
		Message string
		Code    string
	}

	// Interrupted reports that the turn was cancelled.
	Interrupted struct {
		Message string
	}

	ResumeStarted   struct{}
	ResumeNotNeeded struct{}

	// ResumeFailed carries the server's reason for not resuming.
	ResumeFailed struct {
		Error string
	}

	// UserQuestion asks the user to choose before the turn continues.
	UserQuestion struct {
		ToolUseID string
		Questions []domain.Question
	}
)

func (Thinking) Kind() Kind        { return KindThinking }
func (Text) Kind() Kind            { return KindText }
func (ToolUseStart) Kind() Kind    { return KindToolUseStart }
func (ToolExecuting) Kind() Kind   { return KindToolExecuting }
func (ToolResult) Kind() Kind      { return KindToolResult }
func (Result) Kind() Kind          { return KindResult }
func (Error) Kind() Kind           { return KindError }
func (Interrupted) Kind() Kind     { return KindInterrupted }
func (ResumeStarted) Kind() Kind   { return KindResumeStarted }
func (ResumeNotNeeded) Kind() Kind { return KindResumeNotNeeded }
func (ResumeFailed) Kind() Kind    { return KindResumeFailed }
func (UserQuestion) Kind() Kind    { return KindUserQuestion }

func (Thinking) isEvent()        {}
func (Text) isEvent()            {}
func (ToolUseStart) isEvent()    {}
func (ToolExecuting) isEvent()   {}
func (ToolResult) isEvent()      {}
func (Result) isEvent()          {}
func (Error) isEvent()           {}
func (Interrupted) isEvent()     {}
func (ResumeStarted) isEvent()   {}
func (ResumeNotNeeded) isEvent() {}
func (ResumeFailed) isEvent()    {}
func (UserQuestion) isEvent()    {}

// IsSessionNotFound reports whether the error frame means the session no
// longer exists on the server.
func (e Error) IsSessionNotFound() bool {
	if e.Code == CodeSessionNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "session not found")
}

// Command is an outbound client frame. The set of implementations is closed.
type Command interface {
	Kind() Kind
	isCommand()
}

type (
	// Chat sends a user message.
	Chat struct {
		Content string
		Files   []domain.FileRef
	}

	// Interrupt asks the server to cancel the running turn.
	Interrupt struct{}

	// Resume asks the server to replay or continue an in-flight turn.
	Resume struct{}

	// QuestionAnswer answers a pending user question.
	QuestionAnswer struct {
		ToolUseID string
		Answers   map[string]string
	}
)

func (Chat) Kind() Kind           { return KindChat }
func (Interrupt) Kind() Kind      { return KindInterrupt }
func (Resume) Kind() Kind         { return KindResume }
func (QuestionAnswer) Kind() Kind { return KindQuestionAnswer }

func (Chat) isCommand()           {}
func (Interrupt) isCommand()      {}
func (Resume) isCommand()         {}
func (QuestionAnswer) isCommand() {}
