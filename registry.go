package wsrelay

import "sync"

// registry is the process-wide mapping from ConnID to (Connection,
// ConnectionHandle). A connection appears in it iff its state is
// CONNECTING, OPEN, or CLOSING; it is removed exactly once, during the
// close transition (spec.md §3).
type registry struct {
	mu      sync.RWMutex
	clients map[ConnID]*registryEntry
}

type registryEntry struct {
	conn   *Connection
	handle *ConnectionHandle
}

func newRegistry() *registry {
	return &registry{clients: make(map[ConnID]*registryEntry)}
}

func (r *registry) insert(c *Connection, h *ConnectionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = &registryEntry{conn: c, handle: h}
}

func (r *registry) remove(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// len reports the number of currently registered connections.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// snapshot copies out every registered handle under the read lock and
// releases it before the caller iterates, per spec.md §4.3: the registry
// lock is held for O(registry size) but never across a recipient write.
func (r *registry) snapshot() []*ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConnectionHandle, 0, len(r.clients))
	for _, e := range r.clients {
		out = append(out, e.handle)
	}
	return out
}

// snapshotExcept is the same as snapshot but omits the given id, used by
// the exclude-self broadcast modes.
func (r *registry) snapshotExcept(id ConnID) []*ConnectionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConnectionHandle, 0, len(r.clients))
	for cid, e := range r.clients {
		if cid == id {
			continue
		}
		out = append(out, e.handle)
	}
	return out
}
