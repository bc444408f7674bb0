package wsrelay

import (
	"fmt"
	"net"

	"github.com/gorilla/websocket"
)

// ConnectionHandle is a cheap, clonable capability object for acting on
// a Connection from outside its ingest loop: sending, closing, querying
// state, and joining/leaving rooms. It shares the underlying writer and
// lifecycle state with its Connection; it never shares a back-pointer to
// the Connection itself (spec.md DESIGN NOTES).
//
// The handle's Broadcaster excludes by the id this handle was reached
// through, not by any "currently running" identity — cloning a handle
// and calling Broadcast.Text on the clone still excludes the original
// id, per spec.md §9.
type ConnectionHandle struct {
	*connShared

	registry   *registry
	roomEvents chan<- RoomEvent
	roomStop   <-chan struct{}
	replyChan  chan []string

	Broadcast Broadcaster
}

// ID returns the connection's assigned identifier.
func (h *ConnectionHandle) ID() ConnID { return h.connShared.id }

// Addr returns the remote address observed at accept time.
func (h *ConnectionHandle) Addr() net.Addr { return h.connShared.addr }

// State returns the connection's current lifecycle state.
func (h *ConnectionHandle) State() ConnState { return h.connShared.state.load() }

// Clone returns a new handle sharing the same writer, state, registry,
// and room-event channel. Clones are independent values but act on the
// same underlying connection.
func (h *ConnectionHandle) Clone() *ConnectionHandle {
	clone := *h
	return &clone
}

// SendText writes a single UTF-8 text frame. It fails with
// ErrConnectionClosed if the connection is already CLOSED; it never
// panics.
func (h *ConnectionHandle) SendText(msg string) error {
	if err := h.writeFrame(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("wsrelay: send text to %d: %w", h.id, err)
	}
	return nil
}

// SendBinary writes a single binary frame.
func (h *ConnectionHandle) SendBinary(data []byte) error {
	if err := h.writeFrame(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("wsrelay: send binary to %d: %w", h.id, err)
	}
	return nil
}

// Close initiates a graceful close: it sets state to CLOSING, writes a
// Close frame, and expects the peer to reply; the connection's ingest
// loop then observes the peer's close and transitions to CLOSED.
func (h *ConnectionHandle) Close() error {
	return h.closeWithReason(websocket.CloseNormalClosure, "")
}

// closeWithReason is used internally by Server.Shutdown to close every
// connection with an explanatory reason at teardown.
func (h *ConnectionHandle) closeWithReason(code int, reason string) error {
	if h.state.closed() {
		return ErrConnectionClosed
	}
	h.state.store(ConnStateClosing)
	closeMsg := websocket.FormatCloseMessage(code, reason)
	if err := h.writeFrame(websocket.CloseMessage, closeMsg); err != nil {
		return fmt.Errorf("wsrelay: close %d: %w", h.id, err)
	}
	return nil
}

// Join enqueues a request to add this connection to a room. Re-joining a
// room this client is already a member of overwrites its entry (a no-op
// in effect, since the entry is this same handle).
func (h *ConnectionHandle) Join(room string) error {
	return h.sendRoomEvent(joinEvent(h.id, h, room))
}

// Leave enqueues a request to remove this connection from a room. If the
// room becomes empty as a result, the coordinator removes it from the
// Room Table.
func (h *ConnectionHandle) Leave(room string) error {
	return h.sendRoomEvent(leaveEvent(h.id, room))
}

// LeaveAllRooms enqueues a request to remove this connection from every
// room it has joined.
func (h *ConnectionHandle) LeaveAllRooms() error {
	return h.sendRoomEvent(leaveAllEvent(h.id))
}

// JoinedRooms queries the Room Coordinator for the set of rooms this
// connection is currently a member of and blocks for the reply. The
// order of the returned slice is not significant; only its set value is.
func (h *ConnectionHandle) JoinedRooms() ([]string, error) {
	if err := h.sendRoomEvent(listRoomsEvent(h.id, h.replyChan)); err != nil {
		return nil, err
	}
	select {
	case names := <-h.replyChan:
		return names, nil
	case <-h.roomStop:
		return nil, ErrCoordinatorStopped
	}
}

// To returns a fluent binding for sending messages to a single room from
// this connection. See RoomBinding.
func (h *ConnectionHandle) To(room string) RoomBinding {
	return RoomBinding{senderID: h.id, room: room, events: h.roomEvents, stop: h.roomStop}
}

func (h *ConnectionHandle) sendRoomEvent(ev RoomEvent) error {
	// Check stop first: once it is closed, a select that also offers a
	// free buffer slot could otherwise pick the send at random.
	select {
	case <-h.roomStop:
		return ErrCoordinatorStopped
	default:
	}
	select {
	case h.roomEvents <- ev:
		return nil
	case <-h.roomStop:
		return ErrCoordinatorStopped
	}
}
