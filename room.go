package wsrelay

// roomEventKind tags the variant carried by a RoomEvent. RoomEvent is
// modeled as one concrete struct with a kind tag rather than an
// interface hierarchy: every variant is small, the switch in the
// coordinator's loop is exhaustive, and there is exactly one consumer
// (the Room Coordinator), so a tagged struct is the idiomatic Go
// analogue of the spec's tagged union (spec.md §3 RoomEvent).
type roomEventKind int

const (
	roomEventJoin roomEventKind = iota
	roomEventLeave
	roomEventLeaveAll
	roomEventListRooms
	roomEventSendText
	roomEventSendBinary
)

// RoomEvent is a single request enqueued on the coordinator's inbound
// channel. Callers never construct one directly; the constructor
// functions below, used by ConnectionHandle and RoomBinding, are the
// only producers.
type RoomEvent struct {
	kind          roomEventKind
	clientID      ConnID
	handle        *ConnectionHandle
	roomName      string
	text          string
	data          []byte
	includeSender bool
	reply         chan<- []string
}

func joinEvent(id ConnID, h *ConnectionHandle, room string) RoomEvent {
	return RoomEvent{kind: roomEventJoin, clientID: id, handle: h, roomName: room}
}

func leaveEvent(id ConnID, room string) RoomEvent {
	return RoomEvent{kind: roomEventLeave, clientID: id, roomName: room}
}

func leaveAllEvent(id ConnID) RoomEvent {
	return RoomEvent{kind: roomEventLeaveAll, clientID: id}
}

func listRoomsEvent(id ConnID, reply chan<- []string) RoomEvent {
	return RoomEvent{kind: roomEventListRooms, clientID: id, reply: reply}
}

func sendTextEvent(id ConnID, room, text string, includeSender bool) RoomEvent {
	return RoomEvent{kind: roomEventSendText, clientID: id, roomName: room, text: text, includeSender: includeSender}
}

func sendBinaryEvent(id ConnID, room string, data []byte, includeSender bool) RoomEvent {
	return RoomEvent{kind: roomEventSendBinary, clientID: id, roomName: room, data: data, includeSender: includeSender}
}

// room is one named multicast group. Every member handle present has a
// live registry entry; the coordinator removes a room from the Room
// Table the instant it becomes empty (spec.md §3 invariants).
type room struct {
	name    string
	members map[ConnID]*ConnectionHandle
}

func newRoom(name string) *room {
	return &room{name: name, members: make(map[ConnID]*ConnectionHandle)}
}

// RoomBinding is returned by ConnectionHandle.To(room) and holds the
// sender id, target room name, a borrowed send-side channel to the
// coordinator, and the coordinator's stop channel. It carries no state of
// its own beyond that; every method
// simply enqueues the corresponding RoomEvent (spec.md §4.5).
type RoomBinding struct {
	senderID ConnID
	room     string
	events   chan<- RoomEvent
	stop     <-chan struct{}
}

// Text sends a UTF-8 message to every member of the room except the
// sender.
func (b RoomBinding) Text(msg string) error {
	return b.send(sendTextEvent(b.senderID, b.room, msg, false))
}

// EmitText sends a UTF-8 message to every member of the room, including
// the sender.
func (b RoomBinding) EmitText(msg string) error {
	return b.send(sendTextEvent(b.senderID, b.room, msg, true))
}

// Binary sends a binary message to every member of the room except the
// sender.
func (b RoomBinding) Binary(data []byte) error {
	return b.send(sendBinaryEvent(b.senderID, b.room, data, false))
}

// EmitBinary sends a binary message to every member of the room,
// including the sender.
func (b RoomBinding) EmitBinary(data []byte) error {
	return b.send(sendBinaryEvent(b.senderID, b.room, data, true))
}

func (b RoomBinding) send(ev RoomEvent) error {
	select {
	case <-b.stop:
		return ErrCoordinatorStopped
	default:
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.stop:
		return ErrCoordinatorStopped
	}
}
