package wsrelay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wsrelay/wsrelay/internal/logging"
	"github.com/wsrelay/wsrelay/internal/metrics"
)

// handshakeTimeout bounds the WebSocket upgrade per spec.md §4.1 step 1.
// It is applied as the HTTP server's header read timeout, since the
// upgrade handshake is itself an HTTP request/response exchange.
const handshakeTimeout = 10 * time.Second

// acceptBackoff is the pause after a transient accept error, per
// spec.md §4.1 step 6 / §7 item 1.
const acceptBackoff = 1 * time.Second

// Authenticator gates the handshake before a Connection is constructed.
// A rejected request never enters the registry, matching spec.md §4.1
// step 1's "never propagate to other connections."
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// RateLimiter gates the accept path before the handshake begins, keyed
// by the client's IP (the host part of the request's remote address).
type RateLimiter interface {
	Allow(remoteAddr string) bool
}

// Server is the accept loop: it performs the WebSocket handshake under a
// bounded timeout, assigns a monotonic ConnID, installs the connection
// in the Client Registry, invokes OnConnection, and spawns the
// connection's ingest loop (spec.md §4.1).
type Server struct {
	upgrader websocket.Upgrader

	authenticator Authenticator
	rateLimiter   RateLimiter
	tlsConfig     *tls.Config

	registry    *registry
	coordinator *roomCoordinator

	nextID atomic.Uint64

	onConnection ConnectionHandler
	onError      ErrorHandler
	onClose      func()

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup

	shutdownOnce sync.Once
	closed       chan struct{}
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithAuthenticator installs a handshake authenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.authenticator = a }
}

// WithRateLimiter installs an accept-time rate limiter.
func WithRateLimiter(rl RateLimiter) Option {
	return func(s *Server) { s.rateLimiter = rl }
}

// WithTLSConfig enables TLS termination on the listener.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// WithCheckOrigin overrides the upgrader's origin check. The default,
// inherited from gorilla/websocket, allows same-origin requests only.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = f }
}

// NewServer constructs a Server. It owns no network resources until
// Listen is called.
func NewServer(opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		registry:    newRegistry(),
		coordinator: newRoomCoordinator(),
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnConnection registers the handler invoked once a connection is
// installed in the registry, before its ingest loop starts.
func (s *Server) OnConnection(h ConnectionHandler) { s.onConnection = h }

// OnError registers the server-level error handler for accept and
// handshake failures.
func (s *Server) OnError(h ErrorHandler) { s.onError = h }

// OnClose registers the handler invoked exactly once at server teardown.
func (s *Server) OnClose(h func()) { s.onClose = h }

// ActiveConnections reports the current registry size.
func (s *Server) ActiveConnections() int { return s.registry.len() }

func (s *Server) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// acceptRetryListener wraps a net.Listener so transient Accept errors
// (e.g. EMFILE) are reported through the server's error handler and
// retried after acceptBackoff, rather than ending the server, per
// spec.md §4.1 step 6. A listener closed deliberately (via Shutdown or
// context cancellation) still returns net.ErrClosed immediately, which
// lets the embedded http.Server's own Serve loop exit cleanly.
type acceptRetryListener struct {
	net.Listener
	onError func(error)
}

func (l *acceptRetryListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}
		l.onError(fmt.Errorf("wsrelay: accept: %w", err))
		time.Sleep(acceptBackoff)
	}
}

// Listen binds addr and runs the accept loop until ctx is canceled or
// Shutdown is called. It starts the Room Coordinator's goroutine and
// stops it once the accept loop has drained.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("wsrelay: listen %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:           http.HandlerFunc(s.serveHTTP),
		ReadHeaderTimeout: handshakeTimeout,
	}

	go s.coordinator.run()

	go func() {
		<-ctx.Done()
		_ = s.httpServer.Close()
		s.closeAllConnections()
	}()

	logging.Info("wsrelay server listening", zap.String("addr", addr))

	wrapped := &acceptRetryListener{Listener: s.listener, onError: s.reportError}
	serveErr := s.httpServer.Serve(wrapped)

	s.wg.Wait()
	s.coordinator.shutdown()
	s.shutdownOnce.Do(func() {
		close(s.closed)
		if s.onClose != nil {
			s.onClose()
		}
	})

	if errors.Is(serveErr, http.ErrServerClosed) || ctx.Err() != nil {
		return nil
	}
	return serveErr
}

// serveHTTP is the HTTP handler backing the accept loop above. It
// applies rate limiting and authentication before the WebSocket upgrade,
// then hands the upgraded connection to admit.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter != nil {
		clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			clientIP = r.RemoteAddr
		}
		if !s.rateLimiter.Allow(clientIP) {
			metrics.RateLimitRejectedTotal.Inc()
			s.reportError(ErrRateLimited)
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	if s.authenticator != nil {
		if err := s.authenticator.Authenticate(r); err != nil {
			s.reportError(fmt.Errorf("%w: %w", ErrUnauthorized, err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the appropriate HTTP error
		// response (400 for a non-upgrade request) per spec.md §6.
		s.reportError(fmt.Errorf("%w: %w", ErrHandshakeTimeout, err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.admit(ws, remoteAddrOf(r))
	}()
}

// ServeUpgraded is the external-integration entry point of spec.md §6:
// an HTTP framework that already owns the listener and has completed its
// own upgrade hands the resulting *websocket.Conn here. This is an
// alternate entry into the same installation step as serveHTTP, not a
// second implementation of it.
func (s *Server) ServeUpgraded(ws *websocket.Conn, addr net.Addr) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.admit(ws, addr)
	}()
}

// admit allocates a ConnID, builds the Connection/ConnectionHandle pair,
// installs it in the registry, invokes OnConnection, and starts the
// ingest loop (spec.md §4.1 steps 2-6).
func (s *Server) admit(ws wsConnection, addr net.Addr) {
	id := ConnID(s.nextID.Add(1))

	shared := &connShared{id: id, addr: addr, ws: ws}

	ws.SetPingHandler(func(appData string) error {
		metrics.WebsocketFramesTotal.WithLabelValues("ping").Inc()
		if err := shared.writePong([]byte(appData)); err != nil {
			logging.Warn("failed to write pong", zap.Uint64("conn_id", uint64(id)), zap.Error(err))
		}
		return nil
	})
	ws.SetPongHandler(func(appData string) error {
		metrics.PongsReceivedTotal.Inc()
		return nil
	})

	handle := &ConnectionHandle{
		connShared: shared,
		registry:   s.registry,
		roomEvents: s.coordinator.events,
		roomStop:   s.coordinator.stop,
		replyChan:  make(chan []string, 1),
	}
	handle.Broadcast = Broadcaster{registry: s.registry, selfID: id}

	conn := &Connection{
		connShared: shared,
		registry:   s.registry,
		roomEvents: s.coordinator.events,
		handle:     handle,
	}

	s.registry.insert(conn, handle)
	metrics.IncActiveConnections()

	if s.onConnection != nil {
		func() {
			defer recoverHandlerPanic("on_connection", id)
			s.onConnection(conn)
		}()
	}

	conn.runIngest()
}

// Shutdown closes the listener and every connection's socket, and waits
// for every connection's ingest loop to finish; Listen itself returns on
// its own once its accept loop has stopped. Every ingest
// loop is parked in ws.ReadMessage() with no read deadline, so nothing
// short of closing the socket directly unblocks it; writing a Close
// frame alone only asks the peer to reply, and an unresponsive peer
// would otherwise hang Shutdown forever. Connections observe an abrupt
// TCP close rather than a graceful exchange (spec.md §5 Cancellation).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	} else if s.listener != nil {
		_ = s.listener.Close()
	}
	s.closeAllConnections()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeAllConnections best-effort writes a Close frame to every
// registered connection, then force-closes each socket so its ingest
// loop's blocked ReadMessage returns immediately rather than waiting on
// a peer that may never reply.
func (s *Server) closeAllConnections() {
	for _, h := range s.registry.snapshot() {
		_ = h.closeWithReason(websocket.CloseGoingAway, closeReasonServer)
		h.forceClose()
	}
}

type simpleAddr struct {
	network string
	addr    string
}

func (a simpleAddr) Network() string { return a.network }
func (a simpleAddr) String() string  { return a.addr }

func remoteAddrOf(r *http.Request) net.Addr {
	return simpleAddr{network: "tcp", addr: r.RemoteAddr}
}
