package wsrelay

// CloseEvent carries the code and reason observed on an inbound WebSocket
// close frame. If the peer's close frame carried no body, Code is 1005
// and Reason is "No status received" per RFC 6455. If the ingest loop
// exited on a read error with no close frame, a synthetic CloseEvent with
// Code 1006 ("Abnormal closure") is delivered instead, so OnClose always
// fires exactly once per connection (see DESIGN.md, Open Question OQ-1).
type CloseEvent struct {
	Code   int
	Reason string
}

const (
	closeCodeNoStatus = 1005
	closeCodeAbnormal = 1006
	closeReasonNoBody = "No status received"
	closeReasonAbrupt = "Abnormal closure"
	closeReasonServer = "Server shutting down"
)

// OpenHandler is invoked once a connection transitions from CONNECTING to
// OPEN, immediately before the ingest loop begins reading frames.
type OpenHandler func(h *ConnectionHandle)

// TextHandler is invoked for each inbound UTF-8 text frame.
type TextHandler func(h *ConnectionHandle, msg string)

// BinaryHandler is invoked for each inbound binary frame.
type BinaryHandler func(h *ConnectionHandle, data []byte)

// CloseHandler is invoked once, either for an observed close frame or
// for the synthetic abnormal-closure event.
type CloseHandler func(h *ConnectionHandle, ev CloseEvent)

// ErrorHandler is invoked for server-level errors: accept failures and
// handshake failures. It never receives per-connection read/write
// errors, which are logged and confined to the connection that raised
// them.
type ErrorHandler func(err error)

// ConnectionHandler is invoked once a connection is installed in the
// registry, so the caller can register per-connection handlers before
// the ingest loop starts.
type ConnectionHandler func(c *Connection)
