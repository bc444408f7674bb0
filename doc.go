// Package wsrelay is an embeddable WebSocket server engine.
//
// It owns the TCP accept loop and WebSocket handshake, the per-connection
// read/dispatch state machine, a process-wide client registry with
// broadcast fan-out, and a single-writer room coordinator for named
// multicast groups. Wire framing is delegated to gorilla/websocket;
// wsrelay does not persist state, cluster across processes, or implement
// application-level authentication beyond an optional handshake hook.
package wsrelay
