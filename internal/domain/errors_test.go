package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Transport.Send", ErrNotConnected, "session s1")
	want := "Transport.Send: session s1: transport not connected"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Client.SendChat", ErrQuestionPending, "")
	want := "Client.SendChat: question awaiting answer"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("Protocol.Decode", ErrUnknownFrame, "bogus"))
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Protocol.Decode", de.Op)
	assert.Equal(t, CodeUnknownFrame, de.Code())
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeSessionNotFound, ErrorCodeOf(ErrSessionNotFound))
	assert.Equal(t, CodeMalformedFrame, ErrorCodeOf(ErrMalformedFrame))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
}

func TestErrorCodeOf_WrappedPrefersSubsystem(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrHistoryLoad, ErrNotFound)
	assert.Equal(t, CodeHistoryLoad, ErrorCodeOf(err))
}

func TestErrorCodeOf_UnknownAndNil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("boom")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	for _, sentinel := range codeOrder {
		if ErrorCodeOf(sentinel) == CodeUnknown {
			t.Errorf("sentinel %q has no code", sentinel)
		}
	}
	assert.Len(t, codeOrder, len(errorCodeMap))
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	err := WrapOp("Conversation.Load", ErrSnapshotStore)
	assert.Equal(t, "Conversation.Load: snapshot store failed", err.Error())
	assert.ErrorIs(t, err, ErrSnapshotStore)
}

func TestRequestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *RequestError
		kind      RequestErrorKind
		retryable bool
	}{
		{"network", NewNetworkError(errors.New("dial")), RequestNetwork, true},
		{"not found", NewStatusError(404, errors.New("nope")), RequestServer, false},
		{"bad request", NewStatusError(400, errors.New("bad")), RequestServer, true},
		{"unauthorized", NewStatusError(401, errors.New("auth")), RequestServer, true},
		{"server", NewStatusError(503, errors.New("down")), RequestServer, true},
		{"redirect", NewStatusError(302, errors.New("moved")), RequestUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryableError(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestRequestErrorNotFoundWrapsSentinel(t *testing.T) {
	err := NewStatusError(404, errors.New("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "status 404")
}

func TestIsRetryableError_Sentinels(t *testing.T) {
	assert.True(t, IsRetryableError(ErrTimeout))
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrRateLimit)))
	assert.False(t, IsRetryableError(ErrMalformedFrame))
	assert.False(t, IsRetryableError(nil))
}
