package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"chatsync/internal/domain"
)

var (
	userColor   = color.New(color.FgCyan, color.Bold)
	toolColor   = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
	errColor    = color.New(color.FgRed)
	statusColor = color.New(color.Faint)
	askColor    = color.New(color.FgMagenta, color.Bold)
)

// printer renders bus events to a terminal as they arrive.
type printer struct {
	mu       sync.Mutex
	w        io.Writer
	streamID string
	printed  int // bytes of the pending text already written
	midLine  bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// subscribe attaches the printer to bus and returns an unsubscribe func.
func (p *printer) subscribe(bus domain.EventBus) func() {
	return bus.SubscribeAll(p.handle)
}

func (p *printer) handle(_ context.Context, ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch payload := ev.Payload.(type) {
	case domain.StreamPayload:
		p.stream(payload)
	case domain.ToolExecution:
		p.tool(payload)
	case domain.StatusPayload:
		p.endLine()
		statusColor.Fprintf(p.w, "[%s]\n", payload.Status)
	case domain.PendingQuestion:
		p.question(payload)
	case domain.HistoryPayload:
		p.history(ev.Type, payload)
	case domain.TranscriptPayload:
		if payload.Appended != nil && payload.Appended.Role == domain.RoleAssistant && payload.Appended.ID != p.streamID {
			// Synthesized messages (errors, failed resumes) never streamed.
			p.endLine()
			errColor.Fprintln(p.w, payload.Appended.Text())
		}
	default:
		switch ev.Type {
		case domain.EventSessionLost:
			p.endLine()
			errColor.Fprintf(p.w, "session %s no longer exists on the server\n", ev.SessionID)
		case domain.EventQuestionCleared:
			p.endLine()
			statusColor.Fprintln(p.w, "[answer sent]")
		}
	}
}

func (p *printer) stream(s domain.StreamPayload) {
	if s.StreamID != p.streamID {
		p.endLine()
		p.streamID = s.StreamID
		p.printed = 0
	}
	if len(s.Partial) < p.printed {
		// Text was flushed into a block; this is a new run.
		p.printed = 0
	}
	if delta := s.Partial[p.printed:]; delta != "" {
		fmt.Fprint(p.w, delta)
		p.printed = len(s.Partial)
		p.midLine = !strings.HasSuffix(delta, "\n")
	}
	if !s.Streaming {
		p.endLine()
		p.printed = 0
	}
}

func (p *printer) tool(te domain.ToolExecution) {
	p.endLine()
	p.printed = 0
	switch te.Status {
	case domain.ToolSuccess:
		okColor.Fprintf(p.w, "  ✓ %s (%s)\n", te.Name, te.Duration().Round(time.Millisecond))
	case domain.ToolError:
		errColor.Fprintf(p.w, "  ✗ %s: %s\n", te.Name, firstLine(te.Error))
	default:
		toolColor.Fprintf(p.w, "  ⚙ %s %s\n", te.Name, te.Status)
	}
}

func (p *printer) question(q domain.PendingQuestion) {
	p.endLine()
	for _, item := range q.Questions {
		askColor.Fprintf(p.w, "? %s\n", item.Question)
		for _, opt := range item.Options {
			if opt.Description != "" {
				fmt.Fprintf(p.w, "    - %s: %s\n", opt.Label, opt.Description)
			} else {
				fmt.Fprintf(p.w, "    - %s\n", opt.Label)
			}
		}
	}
	statusColor.Fprintln(p.w, "reply with /answer <value> or /answer question=value; ...")
}

func (p *printer) history(t domain.EventType, h domain.HistoryPayload) {
	p.endLine()
	switch {
	case t == domain.EventHistoryFailed:
		errColor.Fprintf(p.w, "history unavailable: %v\n", h.Err)
	case h.Stale:
		toolColor.Fprintf(p.w, "[showing %d cached messages; refresh failed: %v]\n", h.Count, h.Err)
	default:
		statusColor.Fprintf(p.w, "[%d messages loaded]\n", h.Count)
	}
}

func (p *printer) endLine() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

// printTranscript writes msgs in full, used by the history command.
func printTranscript(w io.Writer, msgs []domain.Message) {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			userColor.Fprint(w, "> ")
		}
		for _, b := range m.Content {
			switch v := b.(type) {
			case domain.TextBlock:
				fmt.Fprintln(w, v.Text)
			case domain.ThinkingBlock:
				statusColor.Fprintln(w, v.Content)
			case domain.ToolUseBlock:
				toolColor.Fprintf(w, "  ⚙ %s\n", v.Name)
			case domain.ToolResultBlock:
				if v.IsError {
					errColor.Fprintf(w, "  ✗ %s\n", firstLine(v.Content))
				} else {
					okColor.Fprintf(w, "  ✓ %s\n", firstLine(v.Content))
				}
			}
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	if len(line) > 120 {
		return line[:120] + "…"
	}
	return line
}

// parseAnswers reads the argument of /answer. "q=v; q2=v2" maps each
// question explicitly; a bare value answers the only pending question.
func parseAnswers(arg string, pending *domain.PendingQuestion) (map[string]string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("empty answer")
	}
	if !strings.Contains(arg, "=") {
		if pending == nil || len(pending.Questions) != 1 {
			return nil, fmt.Errorf("several questions are pending; use question=value; ...")
		}
		return map[string]string{pending.Questions[0].Question: arg}, nil
	}
	answers := make(map[string]string)
	for _, pair := range strings.Split(arg, ";") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed answer %q", strings.TrimSpace(pair))
		}
		answers[k] = v
	}
	return answers, nil
}
