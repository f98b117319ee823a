package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// BlockType identifies the variant of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one typed unit of a message's structured output.
// The set of implementations is closed: TextBlock, ThinkingBlock,
// ToolUseBlock and ToolResultBlock.
type ContentBlock interface {
	BlockType() BlockType
	isContentBlock()
}

// TextBlock is a run of visible text.
type TextBlock struct {
	Text string
}

// ThinkingBlock carries the agent's reasoning output.
type ThinkingBlock struct {
	Content string
}

// ToolUseBlock records a tool invocation requested by the agent.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultBlock is the outcome of the invocation with the same ToolUseID.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) BlockType() BlockType       { return BlockText }
func (ThinkingBlock) BlockType() BlockType   { return BlockThinking }
func (ToolUseBlock) BlockType() BlockType    { return BlockToolUse }
func (ToolResultBlock) BlockType() BlockType { return BlockToolResult }

func (TextBlock) isContentBlock()       {}
func (ThinkingBlock) isContentBlock()   {}
func (ToolUseBlock) isContentBlock()    {}
func (ToolResultBlock) isContentBlock() {}

// Message is a finalized transcript entry. Its ID is assigned once and is
// stable for the whole streaming lifetime of the message.
type Message struct {
	ID        string
	Role      string
	Content   []ContentBlock
	Timestamp time.Time
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var s string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			s += t.Text
		}
	}
	return s
}

// wireBlock is the JSON shape shared by history records and persisted caches.
type wireBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// MarshalBlock encodes a single block in its wire shape.
func MarshalBlock(b ContentBlock) ([]byte, error) {
	var w wireBlock
	switch v := b.(type) {
	case TextBlock:
		w = wireBlock{Type: BlockText, Text: v.Text}
	case ThinkingBlock:
		w = wireBlock{Type: BlockThinking, Thinking: v.Content}
	case ToolUseBlock:
		w = wireBlock{Type: BlockToolUse, ID: v.ID, Name: v.Name, Input: v.Input}
	case ToolResultBlock:
		content, err := json.Marshal(v.Content)
		if err != nil {
			return nil, err
		}
		w = wireBlock{Type: BlockToolResult, ToolUseID: v.ToolUseID, Content: content, IsError: v.IsError}
	default:
		return nil, fmt.Errorf("marshal block %T: %w", b, ErrInvalidInput)
	}
	return json.Marshal(w)
}

// UnmarshalBlock decodes a single block. It returns ErrInvalidInput when the
// JSON is well formed but not a recognizable block.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case BlockText:
		return TextBlock{Text: w.Text}, nil
	case BlockThinking:
		thinking := w.Thinking
		if thinking == "" && len(w.Content) > 0 {
			thinking = flattenContent(w.Content)
		}
		return ThinkingBlock{Content: thinking}, nil
	case BlockToolUse:
		if w.ID == "" {
			return nil, fmt.Errorf("tool_use block without id: %w", ErrInvalidInput)
		}
		return ToolUseBlock{ID: w.ID, Name: w.Name, Input: w.Input}, nil
	case BlockToolResult:
		if w.ToolUseID == "" {
			return nil, fmt.Errorf("tool_result block without tool_use_id: %w", ErrInvalidInput)
		}
		return ToolResultBlock{ToolUseID: w.ToolUseID, Content: flattenContent(w.Content), IsError: w.IsError}, nil
	default:
		return nil, fmt.Errorf("block type %q: %w", w.Type, ErrInvalidInput)
	}
}

// MarshalBlocks encodes blocks as a JSON array.
func MarshalBlocks(blocks []ContentBlock) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		data, err := MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

// UnmarshalBlocks decodes a JSON array of blocks. Any unrecognizable element
// fails the whole array.
func UnmarshalBlocks(data []byte) ([]ContentBlock, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	blocks := make([]ContentBlock, 0, len(raw))
	for _, r := range raw {
		b, err := UnmarshalBlock(r)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// flattenContent accepts a tool result body that is either a JSON string or
// an array of {"type":"text","text":...} parts.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out string
		for _, p := range parts {
			out += p.Text
		}
		return out
	}
	return string(raw)
}

type wireMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON encodes the message with its blocks in wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := MarshalBlocks(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{ID: m.ID, Role: m.Role, Content: content, Timestamp: m.Timestamp})
}

// UnmarshalJSON decodes a message encoded by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	blocks, err := UnmarshalBlocks(w.Content)
	if err != nil {
		return fmt.Errorf("message %s: %w", w.ID, err)
	}
	*m = Message{ID: w.ID, Role: w.Role, Content: blocks, Timestamp: w.Timestamp}
	return nil
}
