// Package persist stores the client's cache and draft snapshot behind a
// versioned serialization boundary.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatsync/internal/domain"
)

// SchemaVersion is the record version written by this build.
const SchemaVersion = 1

// ErrUnsupportedVersion is returned for records written by another schema
// version. Loaders skip such records.
var ErrUnsupportedVersion = errors.New("unsupported snapshot schema version")

type cacheRecord struct {
	SchemaVersion int              `json:"schema_version"`
	SessionID     string           `json:"session_id"`
	CachedAt      time.Time        `json:"cached_at"`
	LastMessageID string           `json:"last_message_id,omitempty"`
	Messages      []domain.Message `json:"messages"`
}

type versionProbe struct {
	SchemaVersion int `json:"schema_version"`
}

// EncodeCache serializes one cache entry at the current schema version.
func EncodeCache(c domain.CachedHistory) ([]byte, error) {
	msgs := c.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return json.Marshal(cacheRecord{
		SchemaVersion: SchemaVersion,
		SessionID:     c.SessionID,
		CachedAt:      c.CachedAt.UTC(),
		LastMessageID: c.LastMessageID,
		Messages:      msgs,
	})
}

// DecodeCache parses a record written by EncodeCache.
func DecodeCache(data []byte) (domain.CachedHistory, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return domain.CachedHistory{}, fmt.Errorf("decode cache record: %w", err)
	}
	if probe.SchemaVersion != SchemaVersion {
		return domain.CachedHistory{}, fmt.Errorf("cache record v%d: %w", probe.SchemaVersion, ErrUnsupportedVersion)
	}
	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.CachedHistory{}, fmt.Errorf("decode cache record: %w", err)
	}
	if rec.SessionID == "" {
		return domain.CachedHistory{}, fmt.Errorf("cache record without session id: %w", domain.ErrInvalidInput)
	}
	return domain.CachedHistory{
		SessionID:     rec.SessionID,
		Messages:      rec.Messages,
		CachedAt:      rec.CachedAt,
		LastMessageID: rec.LastMessageID,
	}, nil
}
