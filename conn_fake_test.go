package wsrelay

import (
	"net"
	"sync"
	"time"
)

// fakeWSConn is a minimal wsConnection double: ReadMessage drains a
// queue of scripted results, WriteMessage records what was sent.
type fakeWSConn struct {
	mu     sync.Mutex
	reads  chan fakeRead
	writes []fakeWrite
	closed bool

	pingHandler func(string) error
	pongHandler func(string) error
}

type fakeRead struct {
	messageType int
	data        []byte
	err         error
}

type fakeWrite struct {
	messageType int
	data        []byte
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{reads: make(chan fakeRead, 16)}
}

func (f *fakeWSConn) queueText(msg string) {
	f.reads <- fakeRead{messageType: 1, data: []byte(msg)}
}

func (f *fakeWSConn) queueBinary(data []byte) {
	f.reads <- fakeRead{messageType: 2, data: data}
}

func (f *fakeWSConn) queueErr(err error) {
	f.reads <- fakeRead{err: err}
}

func (f *fakeWSConn) ReadMessage() (int, []byte, error) {
	r := <-f.reads
	return r.messageType, r.data, r.err
}

func (f *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return net.ErrClosed
	}
	f.writes = append(f.writes, fakeWrite{messageType: messageType, data: data})
	return nil
}

func (f *fakeWSConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWSConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWSConn) SetPongHandler(h func(string) error) { f.pongHandler = h }
func (f *fakeWSConn) SetPingHandler(h func(string) error) { f.pingHandler = h }

func (f *fakeWSConn) writtenMessages() []fakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }
