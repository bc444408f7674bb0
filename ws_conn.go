package wsrelay

import "time"

// wsConnection is the slice of *websocket.Conn this package depends on.
// Isolating it behind an interface, the way the teacher's transport
// package isolates *websocket.Conn behind wsConnection, keeps the ingest
// loop and writer path testable without a live socket.
//
// Ping/Close handling relies on gorilla's own control-frame machinery:
// ReadMessage only ever returns TextMessage/BinaryMessage data frames (or
// an error). A received Close frame is surfaced as a *websocket.CloseError
// from ReadMessage itself, and a received Ping is intercepted by the
// handler installed via SetPingHandler before ReadMessage returns — it is
// never handed back as a frame to dispatch on.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetPingHandler(h func(appData string) error)
}
