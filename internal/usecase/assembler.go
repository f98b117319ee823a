package usecase

import (
	"strings"
	"time"

	"chatsync/internal/domain"
)

// MessageSink receives finalized messages.
type MessageSink interface {
	AppendMessage(msg domain.Message)
}

// MessageSinkFunc adapts a function to MessageSink.
type MessageSinkFunc func(msg domain.Message)

func (f MessageSinkFunc) AppendMessage(msg domain.Message) { f(msg) }

// StreamAssembler builds the content of one in-flight assistant message.
// Buffered text is flushed into a TextBlock before any tool block is
// appended, so block order always matches emission order.
// It is not safe for concurrent use.
type StreamAssembler struct {
	sink  MessageSink
	newID func() string
	now   func() time.Time

	active   bool
	streamID string
	text     strings.Builder
	blocks   []domain.ContentBlock
}

// NewStreamAssembler creates an idle assembler.
func NewStreamAssembler(sink MessageSink, newID func() string, now func() time.Time) *StreamAssembler {
	if newID == nil {
		newID = NewID
	}
	if now == nil {
		now = time.Now
	}
	return &StreamAssembler{sink: sink, newID: newID, now: now}
}

// Begin starts a new stream with a fresh id, discarding any unfinalized
// content.
func (a *StreamAssembler) Begin() string {
	a.reset()
	a.active = true
	a.streamID = a.newID()
	return a.streamID
}

// Active reports whether a stream is in progress.
func (a *StreamAssembler) Active() bool { return a.active }

// StreamID returns the id the finalized message will carry, or "".
func (a *StreamAssembler) StreamID() string { return a.streamID }

func (a *StreamAssembler) ensure() {
	if !a.active {
		a.Begin()
	}
}

// AppendText buffers a text fragment.
func (a *StreamAssembler) AppendText(t string) {
	a.ensure()
	a.text.WriteString(t)
}

// AppendToolUse flushes buffered text and appends the tool use block.
func (a *StreamAssembler) AppendToolUse(b domain.ToolUseBlock) {
	a.ensure()
	a.flushText()
	a.blocks = append(a.blocks, b)
}

// AppendToolResult appends the result block; the text buffer is untouched.
func (a *StreamAssembler) AppendToolResult(b domain.ToolResultBlock) {
	a.ensure()
	a.blocks = append(a.blocks, b)
}

// Finalize flushes buffered text and hands the message to the sink. Nothing
// is appended when the stream produced no content. The assembler is idle
// afterwards.
func (a *StreamAssembler) Finalize() (domain.Message, bool) {
	if !a.active {
		return domain.Message{}, false
	}
	a.flushText()
	if len(a.blocks) == 0 {
		a.reset()
		return domain.Message{}, false
	}
	msg := domain.Message{
		ID:        a.streamID,
		Role:      domain.RoleAssistant,
		Content:   a.blocks,
		Timestamp: a.now(),
	}
	a.blocks = nil
	a.reset()
	a.sink.AppendMessage(msg)
	return msg, true
}

// Partial returns what Finalize would produce right now without changing
// any state.
func (a *StreamAssembler) Partial() (domain.Message, bool) {
	if !a.active {
		return domain.Message{}, false
	}
	blocks := make([]domain.ContentBlock, len(a.blocks), len(a.blocks)+1)
	copy(blocks, a.blocks)
	if a.text.Len() > 0 {
		blocks = append(blocks, domain.TextBlock{Text: a.text.String()})
	}
	if len(blocks) == 0 {
		return domain.Message{}, false
	}
	return domain.Message{
		ID:        a.streamID,
		Role:      domain.RoleAssistant,
		Content:   blocks,
		Timestamp: a.now(),
	}, true
}

// PendingText returns the text buffered since the last tool block.
func (a *StreamAssembler) PendingText() string { return a.text.String() }

// Reset drops the stream without emitting anything.
func (a *StreamAssembler) Reset() { a.reset() }

func (a *StreamAssembler) flushText() {
	if a.text.Len() == 0 {
		return
	}
	a.blocks = append(a.blocks, domain.TextBlock{Text: a.text.String()})
	a.text.Reset()
}

func (a *StreamAssembler) reset() {
	a.active = false
	a.streamID = ""
	a.text.Reset()
	a.blocks = nil
}
