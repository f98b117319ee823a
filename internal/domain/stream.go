package domain

// Usage is the token accounting reported with a completed turn.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// TurnSummary is what the client keeps from the last completed turn.
type TurnSummary struct {
	StreamID string
	Usage    *Usage
	Cost     *float64
}

// FileRef references a previously uploaded file attached to a chat message.
type FileRef struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}
