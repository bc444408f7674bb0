package httpintegration

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Server is the slice of wsrelay.Server the bridge depends on, isolated
// behind an interface so this package can be tested without a live
// Server.
type Server interface {
	ServeUpgraded(ws *websocket.Conn, addr net.Addr)
}

// Bridge performs the WebSocket upgrade inside a Gin handler and hands
// the resulting connection to a wsrelay.Server, for callers who want
// Gin (routing, auth middleware, path params) driving the handshake
// route instead of Server.Listen's own accept loop (spec.md §6).
type Bridge struct {
	server   Server
	upgrader websocket.Upgrader
}

// NewBridge builds a Bridge over server. checkOrigin defaults to
// gorilla's same-origin check if nil.
func NewBridge(server Server, checkOrigin func(r *http.Request) bool) *Bridge {
	b := &Bridge{server: server}
	if checkOrigin != nil {
		b.upgrader.CheckOrigin = checkOrigin
	}
	return b
}

// Handle upgrades the request and hands the connection to the bridged
// Server. On upgrade failure the upgrader has already written its own
// error response, so Handle does nothing further.
func (b *Bridge) Handle(c *gin.Context) {
	ws, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	b.server.ServeUpgraded(ws, simpleAddr{network: "tcp", addr: c.Request.RemoteAddr})
}

type simpleAddr struct {
	network string
	addr    string
}

func (a simpleAddr) Network() string { return a.network }
func (a simpleAddr) String() string  { return a.addr }
