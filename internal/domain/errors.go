package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrLimitReached = fmt.Errorf("limit reached")
)

// Sentinel errors for the chat client.
var (
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrNoActiveSession = fmt.Errorf("no active session")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrDecryption      = fmt.Errorf("decryption failed")
	ErrEncryption      = fmt.Errorf("encryption operation failed")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")

	// Transport errors.
	ErrNotConnected  = fmt.Errorf("transport not connected")
	ErrSendQueueFull = fmt.Errorf("transport send queue full")
	ErrTransportDown = fmt.Errorf("transport closed")

	// Protocol errors.
	ErrMalformedFrame = fmt.Errorf("malformed frame")
	ErrUnknownFrame   = fmt.Errorf("unknown frame type")

	// Conversation errors.
	ErrQuestionPending   = fmt.Errorf("question awaiting answer")
	ErrNoPendingQuestion = fmt.Errorf("no pending question")
	ErrHistoryLoad       = fmt.Errorf("history load failed")
	ErrSnapshotStore     = fmt.Errorf("snapshot store failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Transport.Send")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// RequestErrorKind classifies a failed REST call.
type RequestErrorKind string

const (
	RequestNetwork RequestErrorKind = "network"
	RequestServer  RequestErrorKind = "server"
	RequestUnknown RequestErrorKind = "unknown"
)

// RequestError is a classified REST failure. Network errors and 5xx responses
// are retryable, as are 4xx responses other than 404.
type RequestError struct {
	Kind      RequestErrorKind
	Status    int // HTTP status, 0 for network failures
	Retryable bool
	Err       error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NewNetworkError classifies a transport-level failure (dial, timeout, reset).
func NewNetworkError(err error) *RequestError {
	return &RequestError{Kind: RequestNetwork, Retryable: true, Err: err}
}

// NewStatusError classifies a non-2xx HTTP response.
func NewStatusError(status int, err error) *RequestError {
	if status == 404 {
		return &RequestError{Kind: RequestServer, Status: status, Retryable: false, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
	}
	if status >= 400 && status < 600 {
		return &RequestError{Kind: RequestServer, Status: status, Retryable: true, Err: err}
	}
	return &RequestError{Kind: RequestUnknown, Status: status, Retryable: false, Err: err}
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit)
}

// ErrorCode is a machine-parseable error category for logs and UI banners.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeLimitReached    ErrorCode = "LIMIT_REACHED"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeDecryption      ErrorCode = "DECRYPTION"
	CodeEncryption      ErrorCode = "ENCRYPTION"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeNotConnected    ErrorCode = "NOT_CONNECTED"
	CodeSendQueueFull   ErrorCode = "SEND_QUEUE_FULL"
	CodeTransportDown   ErrorCode = "TRANSPORT_DOWN"
	CodeMalformedFrame  ErrorCode = "MALFORMED_FRAME"
	CodeUnknownFrame    ErrorCode = "UNKNOWN_FRAME"
	CodeQuestionPending ErrorCode = "QUESTION_PENDING"
	CodeNoQuestion      ErrorCode = "NO_PENDING_QUESTION"
	CodeHistoryLoad     ErrorCode = "HISTORY_LOAD"
	CodeSnapshotStore   ErrorCode = "SNAPSHOT_STORE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrSessionNotFound:   CodeSessionNotFound,
	ErrNoActiveSession:   CodeNoActiveSession,
	ErrConfigLoad:        CodeConfigLoad,
	ErrDecryption:        CodeDecryption,
	ErrEncryption:        CodeEncryption,
	ErrRateLimit:         CodeRateLimit,
	ErrNotConnected:      CodeNotConnected,
	ErrSendQueueFull:     CodeSendQueueFull,
	ErrTransportDown:     CodeTransportDown,
	ErrMalformedFrame:    CodeMalformedFrame,
	ErrUnknownFrame:      CodeUnknownFrame,
	ErrQuestionPending:   CodeQuestionPending,
	ErrNoPendingQuestion: CodeNoQuestion,
	ErrHistoryLoad:       CodeHistoryLoad,
	ErrSnapshotStore:     CodeSnapshotStore,

	ErrNotFound:     CodeNotFound,
	ErrTimeout:      CodeTimeout,
	ErrInvalidInput: CodeInvalidInput,
	ErrLimitReached: CodeLimitReached,
}

// codeOrder fixes the chain-walk order: subsystem sentinels are checked
// before category sentinels.
var codeOrder = []error{
	ErrSessionNotFound, ErrNoActiveSession, ErrConfigLoad, ErrDecryption, ErrEncryption,
	ErrRateLimit, ErrNotConnected, ErrSendQueueFull, ErrTransportDown, ErrMalformedFrame,
	ErrUnknownFrame, ErrQuestionPending, ErrNoPendingQuestion, ErrHistoryLoad, ErrSnapshotStore,
	ErrNotFound, ErrTimeout, ErrInvalidInput, ErrLimitReached,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for _, sentinel := range codeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
