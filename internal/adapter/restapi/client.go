// Package restapi is the HTTP collaborator for session metadata and history.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"chatsync/internal/domain"
	"chatsync/internal/infra/config"
	"chatsync/internal/infra/tracer"
)

const maxBodyBytes = 8 << 20

// Default breaker settings, used for zero config fields.
const (
	defaultMaxFailures uint32 = 5
	defaultTimeout            = 30 * time.Second
	defaultInterval           = 60 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL    string // REST root, e.g. http://localhost:8000/api
	Token      string
	ClientID   string
	Breaker    config.BreakerConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the session endpoints through a circuit breaker. Failures
// come back as *domain.RequestError.
type Client struct {
	base     string
	token    string
	clientID string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	logger   *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: NewPooledTransport(10 * time.Second)}
	}

	maxFailures := opts.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := opts.Breaker.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := opts.Breaker.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rest:" + opts.BaseURL,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Client errors say nothing about server health.
		IsSuccessful: func(err error) bool {
			var re *domain.RequestError
			if errors.As(err, &re) && re.Kind == domain.RequestServer && re.Status < 500 {
				return true
			}
			return err == nil
		},
	})

	return &Client{
		base:     strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		clientID: opts.ClientID,
		http:     httpClient,
		breaker:  cb,
		logger:   logger,
	}
}

// NewPooledTransport returns an http.Transport sized for a single API host.
func NewPooledTransport(connTimeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// GetSession fetches session metadata. A 404 wraps domain.ErrSessionNotFound.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.SessionInfo, error) {
	return tracer.Run(ctx, "rest.get_session", func(ctx context.Context) (*domain.SessionInfo, error) {
		var info domain.SessionInfo
		if err := c.getJSON(ctx, "/sessions/"+url.PathEscape(sessionID), &info); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: %w", domain.ErrSessionNotFound, err)
			}
			return nil, err
		}
		if info.ID == "" {
			info.ID = sessionID
		}
		return &info, nil
	}, tracer.SessionAttr(sessionID))
}

// ListMessages fetches the raw history records of a session. Both a bare
// array and a {"messages": [...]} envelope are accepted.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]domain.HistoryRecord, error) {
	return tracer.Run(ctx, "rest.list_messages", func(ctx context.Context) ([]domain.HistoryRecord, error) {
		var raw json.RawMessage
		if err := c.getJSON(ctx, "/sessions/"+url.PathEscape(sessionID)+"/messages", &raw); err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)

		var records []domain.HistoryRecord
		if len(raw) > 0 && raw[0] == '{' {
			var env struct {
				Messages []domain.HistoryRecord `json:"messages"`
			}
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, decodeError(err)
			}
			records = env.Messages
		} else if err := json.Unmarshal(raw, &records); err != nil {
			return nil, decodeError(err)
		}
		return records, nil
	}, tracer.SessionAttr(sessionID))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, path)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.NewNetworkError(fmt.Errorf("rest circuit open: %w", err))
		}
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return decodeError(err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, &domain.RequestError{Kind: domain.RequestUnknown, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return nil, domain.NewNetworkError(fmt.Errorf("GET %s: %w", path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewNetworkError(fmt.Errorf("read %s: %w", path, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewStatusError(resp.StatusCode, fmt.Errorf("GET %s: %s", path, snippet(body)))
	}
	return body, nil
}

func decodeError(err error) error {
	return &domain.RequestError{Kind: domain.RequestUnknown, Err: fmt.Errorf("decode response: %w", err)}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}

var _ domain.SessionAPI = (*Client)(nil)
