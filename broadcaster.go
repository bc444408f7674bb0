package wsrelay

import (
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
	"github.com/wsrelay/wsrelay/internal/metrics"
)

// Broadcaster is a view over the Client Registry bound to the
// connection id it was reached through. Text/Binary exclude that id;
// EmitText/EmitBinary include it. Delivery is best-effort: a failed send
// to one recipient is logged and skipped, never aborting the rest of the
// fan-out (spec.md §4.3).
type Broadcaster struct {
	registry *registry
	selfID   ConnID
}

// Text delivers msg to every connected client except the one this
// broadcaster is bound to.
func (b Broadcaster) Text(msg string) {
	b.fanOut("text", b.registry.snapshotExcept(b.selfID), func(h *ConnectionHandle) error {
		return h.SendText(msg)
	})
}

// Binary delivers data to every connected client except the one this
// broadcaster is bound to.
func (b Broadcaster) Binary(data []byte) {
	b.fanOut("binary", b.registry.snapshotExcept(b.selfID), func(h *ConnectionHandle) error {
		return h.SendBinary(data)
	})
}

// EmitText delivers msg to every connected client, including the one
// this broadcaster is bound to.
func (b Broadcaster) EmitText(msg string) {
	b.fanOut("text", b.registry.snapshot(), func(h *ConnectionHandle) error {
		return h.SendText(msg)
	})
}

// EmitBinary delivers data to every connected client, including the one
// this broadcaster is bound to.
func (b Broadcaster) EmitBinary(data []byte) {
	b.fanOut("binary", b.registry.snapshot(), func(h *ConnectionHandle) error {
		return h.SendBinary(data)
	})
}

func (b Broadcaster) fanOut(kind string, recipients []*ConnectionHandle, send func(*ConnectionHandle) error) {
	for _, h := range recipients {
		if err := send(h); err != nil {
			metrics.BroadcastSendFailuresTotal.WithLabelValues(kind).Inc()
			logging.Warn("broadcast send failed",
				zap.String("kind", kind),
				zap.Uint64("recipient_id", uint64(h.ID())),
				zap.Error(err),
			)
		}
	}
}
