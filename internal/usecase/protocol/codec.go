package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"chatsync/internal/domain"
)

// Per-kind payloads. Each holds only the fields its kind reads, so a stray
// field of the wrong type elsewhere cannot drop the frame.
type (
	textFrame struct {
		Content string `json:"content"`
	}
	toolStartFrame struct {
		ToolUseID string         `json:"tool_use_id"`
		Tool      string         `json:"tool"`
		Input     map[string]any `json:"input"`
	}
	toolExecutingFrame struct {
		ToolUseID string         `json:"tool_use_id"`
		Input     map[string]any `json:"input"`
	}
	toolResultFrame struct {
		ToolUseID string          `json:"tool_use_id"`
		Success   bool            `json:"success"`
		Output    json.RawMessage `json:"output"`
	}
	resultFrame struct {
		Usage json.RawMessage `json:"usage"`
		Cost  json.RawMessage `json:"cost"`
	}
	errorFrame struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	messageFrame struct {
		Message string `json:"message"`
	}
	resumeFailedFrame struct {
		Error string `json:"error"`
	}
	questionFrame struct {
		ToolUseID string            `json:"tool_use_id"`
		Questions []domain.Question `json:"questions"`
	}
)

// wireUsage accepts token counts sent as any JSON number.
type wireUsage struct {
	InputTokens              float64 `json:"input_tokens"`
	OutputTokens             float64 `json:"output_tokens"`
	CacheReadInputTokens     float64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens float64 `json:"cache_creation_input_tokens"`
}

type bareFrame struct {
	Type Kind `json:"type"`
}

type chatFrame struct {
	Type    Kind             `json:"type"`
	Content string           `json:"content"`
	Files   []domain.FileRef `json:"files,omitempty"`
}

type answerFrame struct {
	Type      Kind              `json:"type"`
	ToolUseID string            `json:"tool_use_id"`
	Answers   map[string]string `json:"answers"`
}

// Codec decodes inbound frames after validating them against per-kind schemas.
// A Codec is safe for concurrent use.
type Codec struct {
	schemas map[Kind]*jsonschema.Schema
	logger  *slog.Logger
}

// NewCodec compiles the frame schemas.
func NewCodec() (*Codec, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Codec{schemas: schemas, logger: slog.Default()}, nil
}

// SetLogger sets the logger used for recoverable decode problems. Call it
// before the first Decode.
func (c *Codec) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

var defaultCodec = sync.OnceValues(NewCodec)

// Decode decodes data with the package default codec.
func Decode(data []byte) (Event, error) {
	c, err := defaultCodec()
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

// Decode parses one inbound frame. It returns an error wrapping
// domain.ErrMalformedFrame for unparseable or invalid frames and
// domain.ErrUnknownFrame for kinds outside the protocol; callers log and
// drop such frames.
func (c *Codec) Decode(data []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewDomainError("Protocol.Decode", domain.ErrMalformedFrame, err.Error())
	}
	kind, _ := raw["type"].(string)
	if kind == "" {
		return nil, domain.NewDomainError("Protocol.Decode", domain.ErrMalformedFrame, "missing type")
	}
	schema, ok := c.schemas[Kind(kind)]
	if !ok {
		return nil, domain.NewDomainError("Protocol.Decode", domain.ErrUnknownFrame, kind)
	}
	if err := validateFrame(schema, raw); err != nil {
		return nil, domain.NewDomainError("Protocol.Decode", domain.ErrMalformedFrame, kind+": "+err.Error())
	}

	ev, err := c.event(Kind(kind), data)
	if err != nil {
		return nil, domain.NewDomainError("Protocol.Decode", domain.ErrMalformedFrame, kind+": "+err.Error())
	}
	if ev == nil {
		return nil, domain.NewDomainError("Protocol.Decode", domain.ErrUnknownFrame, kind)
	}
	return ev, nil
}

func (c *Codec) event(kind Kind, data []byte) (Event, error) {
	switch kind {
	case KindThinking:
		return Thinking{}, nil
	case KindResumeStarted:
		return ResumeStarted{}, nil
	case KindResumeNotNeeded:
		return ResumeNotNeeded{}, nil
	case KindText:
		var f textFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return Text{Content: f.Content}, nil
	case KindToolUseStart:
		var f toolStartFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return ToolUseStart{ToolUseID: f.ToolUseID, Name: f.Tool, Input: f.Input}, nil
	case KindToolExecuting:
		var f toolExecutingFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return ToolExecuting{ToolUseID: f.ToolUseID, Input: f.Input}, nil
	case KindToolResult:
		var f toolResultFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return ToolResult{ToolUseID: f.ToolUseID, Success: f.Success, Output: flattenOutput(f.Output)}, nil
	case KindResult:
		// Unreadable accounting is dropped; a result frame always decodes.
		var f resultFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("protocol: result accounting unreadable", "error", err)
			return Result{}, nil
		}
		return Result{Usage: c.usage(f.Usage), Cost: c.cost(f.Cost)}, nil
	case KindError:
		var f errorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		msg := f.Message
		if msg == "" {
			msg = f.Error
		}
		return Error{Message: msg, Code: f.Code}, nil
	case KindInterrupted:
		var f messageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return Interrupted{Message: f.Message}, nil
	case KindResumeFailed:
		var f resumeFailedFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return ResumeFailed{Error: f.Error}, nil
	case KindUserQuestion:
		var f questionFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return UserQuestion{ToolUseID: f.ToolUseID, Questions: f.Questions}, nil
	default:
		return nil, nil
	}
}

func (c *Codec) usage(raw json.RawMessage) *domain.Usage {
	if isNull(raw) {
		return nil
	}
	var u wireUsage
	if err := json.Unmarshal(raw, &u); err != nil {
		c.logger.Warn("protocol: ignoring unreadable usage", "error", err)
		return nil
	}
	return &domain.Usage{
		InputTokens:              int(math.Round(u.InputTokens)),
		OutputTokens:             int(math.Round(u.OutputTokens)),
		CacheReadInputTokens:     int(math.Round(u.CacheReadInputTokens)),
		CacheCreationInputTokens: int(math.Round(u.CacheCreationInputTokens)),
	}
}

func (c *Codec) cost(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		c.logger.Warn("protocol: ignoring unreadable cost", "error", err)
		return nil
	}
	return &v
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// flattenOutput returns a string output as-is and any other JSON value as
// its raw text.
func flattenOutput(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Encode serialises an outbound command.
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case Chat:
		return json.Marshal(chatFrame{Type: KindChat, Content: c.Content, Files: c.Files})
	case Interrupt:
		return json.Marshal(bareFrame{Type: KindInterrupt})
	case Resume:
		return json.Marshal(bareFrame{Type: KindResume})
	case QuestionAnswer:
		answers := c.Answers
		if answers == nil {
			answers = map[string]string{}
		}
		return json.Marshal(answerFrame{Type: KindQuestionAnswer, ToolUseID: c.ToolUseID, Answers: answers})
	default:
		return nil, domain.NewDomainError("Protocol.Encode", domain.ErrInvalidInput, fmt.Sprintf("%T", cmd))
	}
}
