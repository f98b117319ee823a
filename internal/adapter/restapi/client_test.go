package restapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	"chatsync/internal/infra/config"
)

func newTestClient(t *testing.T, h http.Handler, breaker config.BreakerConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:  srv.URL + "/api/",
		Token:    "tok",
		ClientID: "client-1",
		Breaker:  breaker,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestGetSession(t *testing.T) {
	var gotAuth, gotClient, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotClient = r.Header.Get("X-Client-ID")
		gotPath = r.URL.Path
		w.Write([]byte(`{"id":"s1","title":"Refactor","is_processing":true}`))
	}), config.BreakerConfig{})

	info, err := c.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", info.ID)
	assert.True(t, info.IsProcessing)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "client-1", gotClient)
	assert.Equal(t, "/api/sessions/s1", gotPath)
}

func TestGetSessionNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
	}), config.BreakerConfig{})

	_, err := c.GetSession(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, domain.IsRetryableError(err))

	var re *domain.RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.Status)
}

func TestListMessagesShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[{"id":"m1","role":"user","content":"hi","created_at":"2026-01-02T03:04:05Z"},{"id":"m2","role":"assistant","content":"[]"}]`},
		{"envelope", `{"messages":[{"id":"m1","role":"user","content":"hi","created_at":"2026-01-02T03:04:05Z"},{"id":"m2","role":"assistant","content":"[]"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/sessions/s1/messages", r.URL.Path)
				w.Write([]byte(tt.body))
			}), config.BreakerConfig{})

			recs, err := c.ListMessages(context.Background(), "s1")
			require.NoError(t, err)
			require.Len(t, recs, 2)
			assert.Equal(t, "m1", recs[0].ID)
			assert.Equal(t, "hi", recs[0].Content)
			assert.Equal(t, 2026, recs[0].CreatedAt.Year())
			assert.Equal(t, "assistant", recs[1].Role)
		})
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusForbidden, true},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}), config.BreakerConfig{})

		_, err := c.ListMessages(context.Background(), "s1")
		var re *domain.RequestError
		require.True(t, errors.As(err, &re), "status %d: %v", tt.status, err)
		assert.Equal(t, domain.RequestServer, re.Kind)
		assert.Equal(t, tt.retryable, re.Retryable, "status %d", tt.status)
	}
}

func TestUndecodableBodyIsUnknown(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}), config.BreakerConfig{})

	_, err := c.ListMessages(context.Background(), "s1")
	var re *domain.RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, domain.RequestUnknown, re.Kind)
	assert.False(t, re.Retryable)
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Options{BaseURL: base, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	_, err := c.GetSession(context.Background(), "s1")
	var re *domain.RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, domain.RequestNetwork, re.Kind)
	assert.True(t, domain.IsRetryableError(err))
}

func TestTimeoutIsRetryableNetworkError(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), config.BreakerConfig{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ListMessages(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.True(t, domain.IsRetryableError(err))
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), config.BreakerConfig{MaxFailures: 2, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := c.ListMessages(context.Background(), "s1")
		require.Error(t, err)
	}
	_, err := c.ListMessages(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.True(t, domain.IsRetryableError(err))
	assert.Equal(t, int32(2), hits.Load(), "open breaker fails fast")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}), config.BreakerConfig{MaxFailures: 1, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := c.GetSession(context.Background(), "s1")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	}
	assert.Equal(t, int32(3), hits.Load())
}
