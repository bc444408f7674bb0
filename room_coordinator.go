package wsrelay

import (
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
	"github.com/wsrelay/wsrelay/internal/metrics"
)

// roomEventChanCapacity bounds the coordinator's inbound channel. 100 is
// the capacity spec.md §4.4 calls "adequate"; producers await once it
// fills, which is the system's only backpressure point for room traffic.
const roomEventChanCapacity = 100

// roomCoordinator is the single permanent task owning the Room Table. It
// is the Go-idiomatic realization of the actor the spec calls for: one
// goroutine serializes every mutation and every room-scoped fan-out, so
// no lock is needed on the table itself (spec.md §4.4, "Why a single
// task?"). This generalizes the teacher's single-owner-mutex pattern
// (Hub.mu guarding Hub.rooms) into a channel-owned actor.
type roomCoordinator struct {
	events chan RoomEvent
	stop   chan struct{}
	done   chan struct{}
	table  map[string]*room
}

func newRoomCoordinator() *roomCoordinator {
	return &roomCoordinator{
		events: make(chan RoomEvent, roomEventChanCapacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		table:  make(map[string]*room),
	}
}

// run processes events FIFO until stop is closed and the channel is
// drained. It must be started on its own goroutine exactly once.
func (rc *roomCoordinator) run() {
	defer close(rc.done)
	for {
		select {
		case ev := <-rc.events:
			rc.handle(ev)
		case <-rc.stop:
			rc.drain()
			return
		}
	}
}

// drain processes whatever is already buffered in the channel before
// exiting, so a shutdown racing a burst of enqueued events does not
// silently lose already-accepted work.
func (rc *roomCoordinator) drain() {
	for {
		select {
		case ev := <-rc.events:
			rc.handle(ev)
		default:
			return
		}
	}
}

// shutdown stops accepting new events (producers observe stop and return
// ErrCoordinatorStopped) and blocks until the goroutine has exited.
func (rc *roomCoordinator) shutdown() {
	close(rc.stop)
	<-rc.done
}

func (rc *roomCoordinator) handle(ev RoomEvent) {
	switch ev.kind {
	case roomEventJoin:
		rc.join(ev)
	case roomEventLeave:
		rc.leave(ev.clientID, ev.roomName)
	case roomEventLeaveAll:
		rc.leaveAll(ev.clientID)
	case roomEventListRooms:
		rc.listRooms(ev)
	case roomEventSendText:
		rc.sendText(ev)
	case roomEventSendBinary:
		rc.sendBinary(ev)
	}
}

func (rc *roomCoordinator) join(ev RoomEvent) {
	r, ok := rc.table[ev.roomName]
	if !ok {
		r = newRoom(ev.roomName)
		rc.table[ev.roomName] = r
		metrics.ActiveRoomsGauge.Inc()
	}
	if _, existed := r.members[ev.clientID]; !existed {
		metrics.RoomMembersGauge.WithLabelValues(ev.roomName).Inc()
	}
	r.members[ev.clientID] = ev.handle
}

func (rc *roomCoordinator) leave(id ConnID, roomName string) {
	r, ok := rc.table[roomName]
	if !ok {
		return
	}
	if _, member := r.members[id]; !member {
		return
	}
	rc.removeMember(r, id)
}

func (rc *roomCoordinator) leaveAll(id ConnID) {
	for _, r := range rc.table {
		if _, ok := r.members[id]; ok {
			rc.removeMember(r, id)
		}
	}
}

// removeMember removes id from r and deletes r from the table the
// instant it becomes empty, preserving the Room Table's non-emptiness
// invariant (spec.md §3).
func (rc *roomCoordinator) removeMember(r *room, id ConnID) {
	delete(r.members, id)
	metrics.RoomMembersGauge.WithLabelValues(r.name).Dec()
	if len(r.members) == 0 {
		delete(rc.table, r.name)
		metrics.ActiveRoomsGauge.Dec()
		metrics.RoomMembersGauge.DeleteLabelValues(r.name)
	}
}

func (rc *roomCoordinator) listRooms(ev RoomEvent) {
	var names []string
	for name, r := range rc.table {
		if _, ok := r.members[ev.clientID]; ok {
			names = append(names, name)
		}
	}
	// Discard silently if the caller's reply channel is full or
	// abandoned; capacity 1 per connection is sufficient for one
	// in-flight query (spec.md §9).
	select {
	case ev.reply <- names:
	default:
	}
}

func (rc *roomCoordinator) sendText(ev RoomEvent) {
	rc.fanOut(ev.roomName, ev.clientID, ev.includeSender, func(h *ConnectionHandle) error {
		return h.SendText(ev.text)
	})
}

func (rc *roomCoordinator) sendBinary(ev RoomEvent) {
	rc.fanOut(ev.roomName, ev.clientID, ev.includeSender, func(h *ConnectionHandle) error {
		return h.SendBinary(ev.data)
	})
}

func (rc *roomCoordinator) fanOut(roomName string, senderID ConnID, includeSender bool, send func(*ConnectionHandle) error) {
	r, ok := rc.table[roomName]
	if !ok {
		metrics.RoomSendDroppedTotal.WithLabelValues("no_such_room").Inc()
		logging.Debug("room send dropped: no such room", zap.String("room", roomName))
		return
	}

	// Snapshot member handles before sending so a Join/Leave racing this
	// fan-out (processed strictly after it, since both flow through this
	// same goroutine) cannot mutate the map mid-iteration.
	recipients := make([]*ConnectionHandle, 0, len(r.members))
	for id, h := range r.members {
		if id == senderID && !includeSender {
			continue
		}
		recipients = append(recipients, h)
	}

	for _, h := range recipients {
		if err := send(h); err != nil {
			metrics.RoomSendFailuresTotal.Inc()
			logging.Warn("room send failed",
				zap.String("room", roomName),
				zap.Uint64("recipient_id", uint64(h.ID())),
				zap.Error(err),
			)
		}
	}
}
