package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatsync/internal/domain"
	"chatsync/internal/infra/tracer"
)

// ParseHistoryContent turns a stored content string into blocks. It never
// fails: empty content yields one empty TextBlock, a JSON block array (or a
// single block object) yields those blocks, and anything else, including
// invalid JSON, yields one TextBlock holding the raw string.
func ParseHistoryContent(content string) []domain.ContentBlock {
	raw := []byte(content)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []domain.ContentBlock{domain.TextBlock{Text: content}}
	}
	switch trimmed[0] {
	case '[':
		if blocks, err := domain.UnmarshalBlocks(trimmed); err == nil && len(blocks) > 0 {
			return blocks
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err == nil && len(arr) == 0 {
			return []domain.ContentBlock{domain.TextBlock{}}
		}
	case '{':
		if b, err := domain.UnmarshalBlock(trimmed); err == nil {
			return []domain.ContentBlock{b}
		}
	}
	return []domain.ContentBlock{domain.TextBlock{Text: content}}
}

// ConvertRecords maps raw history records to messages. Records without an
// id get one from newID.
func ConvertRecords(records []domain.HistoryRecord, newID func() string) []domain.Message {
	out := make([]domain.Message, 0, len(records))
	for _, r := range records {
		role := domain.RoleAssistant
		if r.Role == domain.RoleUser {
			role = domain.RoleUser
		}
		id := r.ID
		if id == "" {
			id = newID()
		}
		out = append(out, domain.Message{
			ID:        id,
			Role:      role,
			Content:   ParseHistoryContent(r.Content),
			Timestamp: r.CreatedAt,
		})
	}
	return out
}

// HistoryOptions bounds the REST calls made when attaching to a session.
type HistoryOptions struct {
	FetchTimeout   time.Duration
	SessionTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
}

func (o *HistoryOptions) withDefaults() {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
}

// HistoryLoader fetches and converts session history with bounded retries.
type HistoryLoader struct {
	api    domain.SessionAPI
	opts   HistoryOptions
	newID  func() string
	logger *slog.Logger
}

// NewHistoryLoader creates a HistoryLoader.
func NewHistoryLoader(api domain.SessionAPI, opts HistoryOptions, newID func() string, logger *slog.Logger) *HistoryLoader {
	opts.withDefaults()
	if newID == nil {
		newID = NewID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryLoader{api: api, opts: opts, newID: newID, logger: logger}
}

// Load fetches the history of sessionID. Retryable failures are retried up
// to MaxAttempts with a doubling delay. The returned error wraps
// domain.ErrHistoryLoad and the last *domain.RequestError.
func (l *HistoryLoader) Load(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return tracer.Run(ctx, "history.load", func(ctx context.Context) ([]domain.Message, error) {
		var lastErr error
		delay := l.opts.RetryDelay
		for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
			records, err := l.fetch(ctx, sessionID)
			if err == nil {
				return ConvertRecords(records, l.newID), nil
			}
			lastErr = err
			if !domain.IsRetryableError(err) || attempt == l.opts.MaxAttempts {
				break
			}
			l.logger.Debug("history fetch failed, retrying",
				"session", sessionID, "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrHistoryLoad, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrHistoryLoad, lastErr)
	}, tracer.SessionAttr(sessionID))
}

func (l *HistoryLoader) fetch(ctx context.Context, sessionID string) ([]domain.HistoryRecord, error) {
	fctx, cancel := context.WithTimeout(ctx, l.opts.FetchTimeout)
	defer cancel()
	records, err := l.api.ListMessages(fctx, sessionID)
	return records, classifyTimeout(ctx, err)
}

// LookupSession fetches session metadata within SessionTimeout.
func (l *HistoryLoader) LookupSession(ctx context.Context, sessionID string) (*domain.SessionInfo, error) {
	sctx, cancel := context.WithTimeout(ctx, l.opts.SessionTimeout)
	defer cancel()
	info, err := l.api.GetSession(sctx, sessionID)
	return info, classifyTimeout(ctx, err)
}

// classifyTimeout turns a bare deadline error from our own per-call timeout
// into a retryable network error.
func classifyTimeout(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	var re *domain.RequestError
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return domain.NewNetworkError(fmt.Errorf("%w: %w", domain.ErrTimeout, err))
	}
	return err
}
