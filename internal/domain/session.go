package domain

import (
	"context"
	"time"
)

// SessionInfo is the subset of the session resource the client consumes.
type SessionInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	IsProcessing bool      `json:"is_processing"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// HistoryRecord is one raw message as returned by the messages endpoint.
// Content is either a JSON-encoded block array or plain text.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionAPI is the REST collaborator for session metadata and history.
type SessionAPI interface {
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListMessages(ctx context.Context, sessionID string) ([]HistoryRecord, error)
}

// CachedHistory is a session's transformed history held by the client.
type CachedHistory struct {
	SessionID     string
	Messages      []Message
	CachedAt      time.Time
	LastMessageID string
}

// Expired reports whether the entry is older than ttl at now.
func (c CachedHistory) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CachedAt) >= ttl
}

// Snapshot is the persisted form of the client's session-scoped state.
type Snapshot struct {
	Caches []CachedHistory
	Drafts map[string]string
}

// SnapshotStore persists caches and drafts across process restarts.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}
