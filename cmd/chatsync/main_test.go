package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/usecase"
)

func init() {
	color.NoColor = true
}

func TestParseAnswers(t *testing.T) {
	one := &domain.PendingQuestion{ToolUseID: "q", Questions: []domain.Question{{Question: "Which?"}}}
	two := &domain.PendingQuestion{ToolUseID: "q", Questions: []domain.Question{{Question: "A?"}, {Question: "B?"}}}

	got, err := parseAnswers("React", one)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Which?": "React"}, got)

	got, err = parseAnswers(" A? = yes ; B?=no", two)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A?": "yes", "B?": "no"}, got)

	_, err = parseAnswers("yes", two)
	assert.Error(t, err)
	_, err = parseAnswers("", one)
	assert.Error(t, err)
	_, err = parseAnswers("=x", one)
	assert.Error(t, err)
}

type fakeChatter struct {
	sent       []string
	interrupts int
	reconnects int
	answers    []map[string]string
	draft      string
	sendErr    error
	state      usecase.ClientState
}

func (f *fakeChatter) SendChat(content string, _ []domain.FileRef) (domain.Message, error) {
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	f.sent = append(f.sent, content)
	return domain.Message{}, nil
}

func (f *fakeChatter) Interrupt() error { f.interrupts++; return nil }
func (f *fakeChatter) Reconnect() error { f.reconnects++; return nil }

func (f *fakeChatter) AnswerQuestion(a map[string]string) error {
	f.answers = append(f.answers, a)
	return nil
}

func (f *fakeChatter) SetDraft(text string)       { f.draft = text }
func (f *fakeChatter) State() usecase.ClientState { return f.state }

func TestHandleLine(t *testing.T) {
	var out bytes.Buffer
	c := &fakeChatter{state: usecase.ClientState{
		Question: &domain.PendingQuestion{ToolUseID: "q", Questions: []domain.Question{{Question: "Go?"}}},
	}}

	require.NoError(t, handleLine(c, &out, "  hello  "))
	require.NoError(t, handleLine(c, &out, ""))
	require.NoError(t, handleLine(c, &out, "/interrupt"))
	require.NoError(t, handleLine(c, &out, "/reconnect"))
	require.NoError(t, handleLine(c, &out, "/draft later"))
	require.NoError(t, handleLine(c, &out, "/answer yes"))
	require.NoError(t, handleLine(c, &out, "/bogus"))
	assert.ErrorIs(t, handleLine(c, &out, "/quit"), errQuit)

	assert.Equal(t, []string{"hello"}, c.sent)
	assert.Equal(t, 1, c.interrupts)
	assert.Equal(t, 1, c.reconnects)
	assert.Equal(t, "later", c.draft)
	assert.Equal(t, []map[string]string{{"Go?": "yes"}}, c.answers)
	assert.Contains(t, out.String(), "unknown command /bogus")

	out.Reset()
	c.sendErr = domain.NewDomainError("Client.SendChat", domain.ErrQuestionPending, "")
	require.NoError(t, handleLine(c, &out, "hi"))
	assert.Contains(t, out.String(), "answer the pending question first")
}

func TestReadInput(t *testing.T) {
	var got []string
	err := readInput(context.Background(), strings.NewReader("one\ntwo\n"), func(l string) error {
		got = append(got, l)
		return nil
	})
	assert.ErrorIs(t, err, errQuit, "EOF ends the loop")
	assert.Equal(t, []string{"one", "two"}, got)

	stop := errors.New("stop")
	err = readInput(context.Background(), strings.NewReader("a\nb\n"), func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestPrinterStreamsDeltas(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	ctx := context.Background()

	p.handle(ctx, domain.Event{Type: domain.EventStreamUpdated, Payload: domain.StreamPayload{StreamID: "m1", Streaming: true, Partial: "Hel"}})
	p.handle(ctx, domain.Event{Type: domain.EventStreamUpdated, Payload: domain.StreamPayload{StreamID: "m1", Streaming: true, Partial: "Hello"}})
	p.handle(ctx, domain.Event{Type: domain.EventToolUpdated, Payload: domain.ToolExecution{Name: "Read", Status: domain.ToolExecuting}})
	p.handle(ctx, domain.Event{Type: domain.EventStreamUpdated, Payload: domain.StreamPayload{StreamID: "m1", Streaming: true, Partial: "ok"}})
	p.handle(ctx, domain.Event{Type: domain.EventTranscriptChanged, Payload: domain.TranscriptPayload{
		Appended: &domain.Message{ID: "m1", Role: domain.RoleAssistant},
	}})
	p.handle(ctx, domain.Event{Type: domain.EventStreamUpdated, Payload: domain.StreamPayload{}})
	p.handle(ctx, domain.Event{Type: domain.EventTranscriptChanged, Payload: domain.TranscriptPayload{
		Appended: &domain.Message{ID: "e1", Role: domain.RoleAssistant, Content: []domain.ContentBlock{domain.TextBlock{Text: "Error: boom"}}},
	}})
	p.handle(ctx, domain.Event{Type: domain.EventSessionLost, SessionID: "s1"})

	assert.Equal(t, "Hello\n  ⚙ Read executing\nok\nError: boom\nsession s1 no longer exists on the server\n", out.String())
}

func TestPrintTranscript(t *testing.T) {
	var out bytes.Buffer
	printTranscript(&out, []domain.Message{
		{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock{Text: "list files"}}},
		{Role: domain.RoleAssistant, Content: []domain.ContentBlock{
			domain.ToolUseBlock{ID: "t1", Name: "Bash"},
			domain.ToolResultBlock{ToolUseID: "t1", Content: "a.go\nb.go"},
			domain.TextBlock{Text: "Two files."},
		}},
	})
	assert.Equal(t, "> list files\n  ⚙ Bash\n  ✓ a.go\nTwo files.\n", out.String())
}
