// Package transport manages the per-session websocket channel to the chat
// server, including reconnection with exponential backoff.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"nhooyr.io/websocket"

	"chatsync/internal/domain"
	"chatsync/internal/infra/tracer"
)

// CloseSessionNotFound is the close code the server uses when the requested
// session does not exist.
const CloseSessionNotFound websocket.StatusCode = 4004

// DefaultMaxAttempts is the reconnect budget when Options leaves it unset.
const DefaultMaxAttempts = 5

// Options configures a Manager.
type Options struct {
	BaseURL      string // websocket root, e.g. ws://localhost:8000
	Token        string // appended as ?token= when set
	ClientID     string // sent as X-Client-ID
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // reconnects before giving up; zero means 5
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	// Backoff overrides the delay before reconnect attempt n (0-based).
	Backoff func(attempt int) time.Duration
	Logger  *slog.Logger
}

func (o *Options) withDefaults() {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.Backoff == nil {
		base, maxDelay := o.BaseDelay, o.MaxDelay
		o.Backoff = func(attempt int) time.Duration {
			return BackoffDelay(attempt, base, maxDelay)
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// BackoffDelay returns min(base * 2^attempt, maxDelay).
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}

// wsConn is one established websocket with its outbound queue.
type wsConn struct {
	ws        *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close(code, reason)
	})
}

// Manager owns at most one websocket, addressed by the active session id.
// Listener callbacks are serialized and never made while the Manager's own
// lock is held, so a listener may call back into the Manager.
type Manager struct {
	opts     Options
	logger   *slog.Logger
	listener domain.FrameListener

	emitMu sync.Mutex // serializes listener callbacks

	mu        sync.Mutex
	sessionID string
	status    domain.ConnectionStatus
	gen       uint64 // bumped on every dial; stale goroutines compare and exit
	conn      *wsConn
	dialing   bool
	timer     *time.Timer
	attempts  int
	notFound  bool
	closed    bool
}

// NewManager creates a Manager. SetListener must be called before Connect.
func NewManager(opts Options) *Manager {
	opts.withDefaults()
	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		status: domain.StatusDisconnected,
	}
}

// SetListener installs the frame and status receiver.
func (m *Manager) SetListener(l domain.FrameListener) {
	m.emitMu.Lock()
	m.listener = l
	m.emitMu.Unlock()
}

// Connect opens the channel for sessionID without blocking on the dial.
func (m *Manager) Connect(sessionID string) error {
	if sessionID == "" {
		return domain.NewDomainError("Transport.Connect", domain.ErrInvalidInput, "empty session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrTransportDown
	}
	if sessionID != m.sessionID {
		m.teardownLocked("session changed")
		m.sessionID = sessionID
		m.notFound = false
		m.attempts = 0
	} else {
		if m.notFound {
			return domain.NewDomainError("Transport.Connect", domain.ErrSessionNotFound, sessionID)
		}
		if m.conn != nil || m.dialing || m.timer != nil {
			return nil
		}
		m.attempts = 0
	}
	m.startDialLocked()
	return nil
}

// Reconnect drops any current connection and dials immediately, resetting
// the attempt counter.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return domain.ErrTransportDown
	case m.sessionID == "":
		return domain.ErrNoActiveSession
	case m.notFound:
		return domain.NewDomainError("Transport.Reconnect", domain.ErrSessionNotFound, m.sessionID)
	}
	m.teardownLocked("reconnect requested")
	m.attempts = 0
	m.startDialLocked()
	return nil
}

// MarkSessionNotFound enters the terminal state for sessionID: the
// connection is dropped and nothing redials until the id changes. The
// listener is not notified.
func (m *Manager) MarkSessionNotFound(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionID != m.sessionID {
		return
	}
	m.notFound = true
	m.teardownLocked("session not found")
	m.status = domain.StatusDisconnected
}

// Send queues data on the current connection.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()

	if c == nil {
		return domain.NewDomainError("Transport.Send", domain.ErrNotConnected, "")
	}
	select {
	case <-c.done:
		return domain.NewDomainError("Transport.Send", domain.ErrNotConnected, "")
	case c.sendCh <- data:
		return nil
	default:
		return domain.NewDomainError("Transport.Send", domain.ErrSendQueueFull, "")
	}
}

// Close drops the connection and cancels any pending reconnect. Close is
// idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.teardownLocked("client closing")
	m.status = domain.StatusDisconnected
	return nil
}

// Status returns the last status reported for the current session.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Attempts returns the number of reconnects scheduled since the last
// successful connect.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// teardownLocked invalidates in-flight goroutines, stops the timer and
// closes the connection.
func (m *Manager) teardownLocked(reason string) {
	m.gen++
	m.dialing = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.conn != nil {
		m.conn.close(websocket.StatusNormalClosure, reason)
		m.conn = nil
	}
}

func (m *Manager) startDialLocked() {
	m.gen++
	m.dialing = true
	go m.run(m.gen, m.sessionID)
}

// run owns one connection attempt from dial to close.
func (m *Manager) run(gen uint64, sessionID string) {
	m.emitStatus(gen, sessionID, domain.StatusConnecting)

	ws, err := m.dial(sessionID)
	if err != nil {
		var nf *notFoundError
		if errors.As(err, &nf) {
			m.sessionGone(gen, sessionID)
			return
		}
		m.logger.Warn("transport: dial failed", "session", sessionID, "error", err)
		m.emitStatus(gen, sessionID, domain.StatusError)
		m.scheduleReconnect(gen)
		return
	}

	c := &wsConn{
		ws:     ws,
		sendCh: make(chan []byte, m.opts.SendBuffer),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		ws.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	m.conn = c
	m.dialing = false
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Info("transport: connected", "session", sessionID)
	go m.writeLoop(c)
	m.emitStatus(gen, sessionID, domain.StatusConnected)

	err = m.readLoop(gen, sessionID, c)
	c.close(websocket.StatusNormalClosure, "read loop ended")

	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	m.mu.Unlock()

	if websocket.CloseStatus(err) == CloseSessionNotFound {
		m.sessionGone(gen, sessionID)
		return
	}
	m.logger.Info("transport: disconnected", "session", sessionID, "error", err)
	m.emitStatus(gen, sessionID, domain.StatusDisconnected)
	m.scheduleReconnect(gen)
}

type notFoundError struct{ sessionID string }

func (e *notFoundError) Error() string { return "session " + e.sessionID + " not found" }

func (m *Manager) dial(sessionID string) (*websocket.Conn, error) {
	ctx, span := tracer.StartSpan(context.Background(), "transport.dial",
		trace.WithAttributes(tracer.SessionAttr(sessionID), tracer.IntAttr("transport.attempt", m.Attempts())))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	if m.opts.ClientID != "" {
		header.Set("X-Client-ID", m.opts.ClientID)
	}
	ws, resp, err := websocket.Dial(ctx, m.endpoint(sessionID), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			err = &notFoundError{sessionID: sessionID}
		}
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return ws, nil
}

func (m *Manager) endpoint(sessionID string) string {
	u := strings.TrimRight(m.opts.BaseURL, "/") + "/ws/chat/" + url.PathEscape(sessionID)
	if m.opts.Token != "" {
		u += "?token=" + url.QueryEscape(m.opts.Token)
	}
	return u
}

func (m *Manager) readLoop(gen uint64, sessionID string, c *wsConn) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			m.logger.Debug("transport: ignoring binary frame", "session", sessionID)
			continue
		}
		if !m.deliver(gen, sessionID, data) {
			return fmt.Errorf("connection superseded")
		}
	}
}

func (m *Manager) writeLoop(c *wsConn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), m.opts.WriteTimeout)
			err := c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				m.logger.Warn("transport: write failed", "error", err)
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// scheduleReconnect arms the backoff timer for gen's session, unless the
// attempt budget is spent or the session is gone.
func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.closed || m.notFound {
		return
	}
	m.dialing = false
	if m.attempts >= m.opts.MaxAttempts {
		m.logger.Warn("transport: giving up reconnecting",
			"session", m.sessionID, "attempts", m.attempts)
		return
	}
	delay := m.opts.Backoff(m.attempts)
	m.attempts++
	m.logger.Debug("transport: reconnect scheduled",
		"session", m.sessionID, "attempt", m.attempts, "delay", delay)

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.timer != t || gen != m.gen || m.closed || m.notFound {
			return
		}
		m.timer = nil
		m.startDialLocked()
	})
	m.timer = t
}

func (m *Manager) sessionGone(gen uint64, sessionID string) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.notFound = true
	m.dialing = false
	m.mu.Unlock()

	m.logger.Warn("transport: session not found, not reconnecting", "session", sessionID)
	m.emitStatus(gen, sessionID, domain.StatusDisconnected)
	m.emit(gen, func(l domain.FrameListener) { l.HandleSessionNotFound(sessionID) })
}

func (m *Manager) emitStatus(gen uint64, sessionID string, status domain.ConnectionStatus) {
	m.emit(gen, func(l domain.FrameListener) {
		m.mu.Lock()
		m.status = status
		m.mu.Unlock()
		l.HandleStatus(sessionID, status)
	})
}

func (m *Manager) deliver(gen uint64, sessionID string, data []byte) bool {
	return m.emit(gen, func(l domain.FrameListener) { l.HandleFrame(sessionID, data) })
}

// emit runs fn under emitMu if gen is still current. It reports whether gen
// was current.
func (m *Manager) emit(gen uint64, fn func(domain.FrameListener)) bool {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	current := gen == m.gen && !m.closed
	m.mu.Unlock()
	if !current {
		return false
	}
	if m.listener != nil {
		fn(m.listener)
	}
	return true
}

var _ domain.Transport = (*Manager)(nil)
