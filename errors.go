package wsrelay

import "errors"

// Sentinel errors returned by send and room operations. Callers should
// compare with errors.Is; internal call sites wrap these with context
// via fmt.Errorf("...: %w", ...).
var (
	// ErrConnectionClosed is returned by any send operation on a
	// Connection whose state is CLOSED.
	ErrConnectionClosed = errors.New("wsrelay: connection closed")

	// ErrHandshakeTimeout is returned when a WebSocket upgrade does not
	// complete within the configured handshake timeout.
	ErrHandshakeTimeout = errors.New("wsrelay: handshake timed out")

	// ErrCoordinatorStopped is returned by room operations enqueued
	// after the Room Coordinator has shut down.
	ErrCoordinatorStopped = errors.New("wsrelay: room coordinator stopped")

	// ErrUnauthorized is reported to the server's error handler when a
	// configured Authenticator rejects the handshake.
	ErrUnauthorized = errors.New("wsrelay: handshake unauthorized")

	// ErrRateLimited is reported to the server's error handler when a
	// configured RateLimiter rejects an accept before the handshake begins.
	ErrRateLimited = errors.New("wsrelay: rate limited")
)
