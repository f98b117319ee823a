package domain

// ConnectionStatus is the state of the duplex channel for one session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// FrameListener receives everything a Transport observes. Calls are
// serialized and made in arrival order.
type FrameListener interface {
	HandleFrame(sessionID string, data []byte)
	HandleStatus(sessionID string, status ConnectionStatus)
	// HandleSessionNotFound reports that the server no longer knows
	// sessionID. No further reconnection is attempted for it.
	HandleSessionNotFound(sessionID string)
}

// Transport owns one persistent duplex channel per active session id.
type Transport interface {
	// SetListener installs the receiver of frames and status changes. It
	// must be called before Connect.
	SetListener(l FrameListener)
	// Connect opens the channel for sessionID. A no-op when already open or
	// opening for the same id; switching ids closes the previous channel.
	Connect(sessionID string) error
	// Send queues a frame without blocking on the network.
	Send(data []byte) error
	// Reconnect bypasses backoff and dials immediately.
	Reconnect() error
	// MarkSessionNotFound stops all reconnection for sessionID until a
	// different id is requested.
	MarkSessionNotFound(sessionID string)
	Close() error
}
