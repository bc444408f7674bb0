package wsrelay

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
	"github.com/wsrelay/wsrelay/internal/metrics"
)

// ConnID uniquely identifies a connection for the lifetime of the
// process. It is assigned at accept time from a monotonic counter.
type ConnID uint64

// writeDeadline bounds a single outbound frame write, mirroring the
// teacher's transport.Client writePump deadline.
const writeDeadline = 10 * time.Second

// connShared holds the fields a Connection and every clone of its
// ConnectionHandle must see identically: the writer (exclusive access,
// one frame in flight at a time) and the lifecycle state. Neither side
// owns the other; both share these references (spec.md DESIGN NOTES,
// "Cyclic references between Connection and Handle").
type connShared struct {
	id        ConnID
	addr      net.Addr
	ws        wsConnection
	writeMu   sync.Mutex
	state     atomicState
	closeOnce sync.Once
}

// writeFrame serializes a single frame write behind writeMu. It never
// panics; a write attempted after CLOSED fails fast with
// ErrConnectionClosed without touching the socket.
func (s *connShared) writeFrame(messageType int, data []byte) error {
	if s.state.closed() {
		return ErrConnectionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	// Re-check under the lock: a concurrent close() may have landed
	// between the fast check above and acquiring the writer.
	if s.state.closed() {
		return ErrConnectionClosed
	}
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return fmt.Errorf("wsrelay: set write deadline: %w", err)
	}
	return s.ws.WriteMessage(messageType, data)
}

// writePong answers an inbound ping with no user callback, per spec.md
// §4.2's ingest table.
func (s *connShared) writePong(payload []byte) error {
	return s.writeFrame(websocket.PongMessage, payload)
}

// forceClose closes the underlying socket directly, without waiting for
// a close-frame reply. This is what unblocks a reader parked in
// ws.ReadMessage(): closing the listener or writing a close frame alone
// does neither (spec.md §5 Cancellation, "drop the writer handle ->
// abrupt TCP close").
func (s *connShared) forceClose() {
	_ = s.ws.Close()
}

// Connection owns one WebSocket session from handshake to close. It runs
// the ingest loop; ConnectionHandle is the capability object returned to
// callbacks for acting on it from outside that loop.
type Connection struct {
	*connShared

	registry *registry

	roomEvents chan<- RoomEvent

	onOpen   OpenHandler
	onText   TextHandler
	onBinary BinaryHandler
	onClose  CloseHandler

	handle *ConnectionHandle
}

// ID returns the connection's assigned identifier.
func (c *Connection) ID() ConnID { return c.connShared.id }

// Addr returns the remote address observed at accept time.
func (c *Connection) Addr() net.Addr { return c.connShared.addr }

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState { return c.connShared.state.load() }

// Handle returns the clonable capability object bound to this connection.
func (c *Connection) Handle() *ConnectionHandle { return c.handle }

// OnOpen registers the handler invoked once the connection transitions
// to OPEN. At most one handler may be registered; a later call replaces
// an earlier one.
func (c *Connection) OnOpen(h OpenHandler) { c.onOpen = h }

// OnText registers the handler invoked for each inbound text frame.
func (c *Connection) OnText(h TextHandler) { c.onText = h }

// OnBinary registers the handler invoked for each inbound binary frame.
func (c *Connection) OnBinary(h BinaryHandler) { c.onBinary = h }

// OnClose registers the handler invoked exactly once when the connection
// terminates, whether via an observed close frame or an abnormal read
// error (see CloseEvent).
func (c *Connection) OnClose(h CloseHandler) { c.onClose = h }

// runIngest transitions CONNECTING -> OPEN, invokes the open handler,
// then repeatedly dispatches inbound frames until the reader errors or a
// close frame is observed. It must run on its own goroutine; exactly one
// goroutine per connection polls the reader (spec.md §4.2's concurrency
// contract).
func (c *Connection) runIngest() {
	defer c.finish()

	c.state.store(ConnStateOpen)
	c.invokeOpen()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		// Ping, Pong and Close never reach here: gorilla intercepts Ping
		// via the handler installed in Server.admit, and a received
		// Close surfaces as an error from ReadMessage (see
		// handleReadError), not as a returned frame.
		switch messageType {
		case websocket.TextMessage:
			metrics.WebsocketFramesTotal.WithLabelValues("text").Inc()
			c.invokeText(string(data))
		case websocket.BinaryMessage:
			metrics.WebsocketFramesTotal.WithLabelValues("binary").Inc()
			c.invokeBinary(data)
		}
	}
}

// handleReadError classifies a reader error. A close frame observed by
// gorilla surfaces as a *websocket.CloseError from ReadMessage itself
// (rather than a CloseMessage return), since gorilla's default close
// handler consumes the frame; any other error takes the abnormal path.
func (c *Connection) handleReadError(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason := normalizeCloseCodeReason(closeErr.Code, closeErr.Text)
		c.closeAndNotify(CloseEvent{Code: code, Reason: reason})
		return
	}

	logging.Info("connection read error", zap.Uint64("conn_id", uint64(c.id)), zap.Error(err))
	// REDESIGN (spec.md §9 Open Question, resolved per DESIGN.md OQ-1):
	// fire a synthetic abnormal-closure event rather than leaving
	// OnClose unfired, so every connection closes exactly once.
	c.closeAndNotify(CloseEvent{Code: closeCodeAbnormal, Reason: closeReasonAbrupt})
}

func normalizeCloseCodeReason(code int, reason string) (int, string) {
	if code == closeCodeNoStatus && reason == "" {
		return closeCodeNoStatus, closeReasonNoBody
	}
	return code, reason
}

// closeAndNotify transitions to CLOSED and invokes the close handler
// exactly once, guarded by closeOnce so a concurrent Handle.Close() call
// racing the ingest loop's own close path cannot double-fire it.
func (c *Connection) closeAndNotify(ev CloseEvent) {
	c.closeOnce.Do(func() {
		c.state.store(ConnStateClosed)
		c.invokeClose(ev)
	})
}

// finish runs once the ingest loop returns by any path: it closes the
// socket, removes the connection from the registry, and tells the room
// coordinator to drop this client from every room it had joined.
func (c *Connection) finish() {
	_ = c.ws.Close()
	c.registry.remove(c.id)
	metrics.DecActiveConnections()
	select {
	case c.roomEvents <- leaveAllEvent(c.id):
	default:
		// Coordinator is backed up or stopped; LeaveAll is best-effort
		// cleanup here since the registry entry is already gone and no
		// further sends can reach this client regardless.
		logging.Warn("dropped LeaveAll on connection close", zap.Uint64("conn_id", uint64(c.id)))
	}
}

func (c *Connection) invokeOpen() {
	if c.onOpen == nil {
		return
	}
	defer recoverHandlerPanic("on_open", c.id)
	c.onOpen(c.handle)
}

func (c *Connection) invokeText(msg string) {
	if c.onText == nil {
		return
	}
	defer recoverHandlerPanic("on_text", c.id)
	c.onText(c.handle, msg)
}

func (c *Connection) invokeBinary(data []byte) {
	if c.onBinary == nil {
		return
	}
	defer recoverHandlerPanic("on_binary", c.id)
	c.onBinary(c.handle, data)
}

func (c *Connection) invokeClose(ev CloseEvent) {
	if c.onClose == nil {
		return
	}
	defer recoverHandlerPanic("on_close", c.id)
	c.onClose(c.handle, ev)
}

// recoverHandlerPanic isolates a user callback panic to the connection
// that raised it, per spec.md §7 item 6: one connection's bug must not
// kill the accept loop or the room coordinator.
func recoverHandlerPanic(slot string, id ConnID) {
	if r := recover(); r != nil {
		logging.Error("recovered panic in user handler",
			zap.String("handler", slot),
			zap.Uint64("conn_id", uint64(id)),
			zap.Any("panic", r),
		)
	}
}
