// Package ws serves the WebSocket endpoint: it upgrades HTTP connections,
// watches them for readable frames with epoll (or a portable fallback),
// reads frames on a bounded worker pool and hands them to a Handler.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/metrics"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for reading one frame once data is ready
	WriteTimeout   time.Duration // timeout for writing one frame
	SendQueueSize  int           // outbound frames buffered per connection
	MaxFrameSize   int64         // larger data frames close the connection
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendQueueSize:  64,
		MaxFrameSize:   64 << 10,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Handler receives the connection lifecycle.
type Handler interface {
	// Accept may reject an upgrade request before the handshake.
	Accept(r *http.Request) error
	// OnConnect runs after the handshake. An error closes the connection.
	OnConnect(c *Connection) error
	// OnMessage runs on a worker goroutine for every data frame.
	OnMessage(c *Connection, data []byte)
	// OnDisconnect runs exactly once per connection that was registered.
	OnDisconnect(c *Connection)
}

// Server is the WebSocket server built on gobwas/ws.
type Server struct {
	config     ServerConfig
	handler    Handler
	log        *zap.Logger
	poller     *poller
	conns      *ConnectionManager
	workerPool chan struct{} // semaphore limiting concurrent read workers
	mux        *http.ServeMux
	httpServer *http.Server
	stats      func(ctx context.Context) any
	done       chan struct{}
	stopOnce   sync.Once
	startedAt  time.Time
}

// NewServer creates a Server. Routes for /ws and /health are registered
// immediately; more can be added with Handle before serving.
func NewServer(config ServerConfig, handler Handler, logger *zap.Logger) (*Server, error) {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = DefaultServerConfig().MaxFrameSize
	}
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("ws: failed to create poller: %w", err)
	}

	s := &Server{
		config:     config,
		handler:    handler,
		log:        logger,
		poller:     p,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		mux:        http.NewServeMux(),
		done:       make(chan struct{}),
		startedAt:  time.Now(),
	}
	s.mux.HandleFunc("/ws", s.handleUpgrade)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s, nil
}

// SetHandler replaces the connection handler. It must be called before
// serving.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// SetStats registers a function whose result is included in /health.
func (s *Server) SetStats(fn func(ctx context.Context) any) {
	s.stats = fn
}

// Handle registers an extra HTTP route.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("ws: listen %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.eventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	s.log.Info("server listening",
		zap.String("addr", l.Addr().String()),
		zap.Int("workers", s.config.WorkerPoolSize),
		zap.Int("max_conns", s.config.MaxConnections))

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request with the gobwas zero-copy upgrader
// and registers the resulting connection.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if err := s.handler.Accept(r); err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(uuid.NewString(), conn, rw.Reader, s.config.SendQueueSize)
	c.RemoteAddr = ClientIP(r)
	c.Query = r.URL.Query()

	s.conns.Add(c)
	metrics.ConnectionsTotal.Inc()
	go c.writeLoop(s.config.WriteTimeout, func(err error) {
		s.log.Debug("write failed", zap.String("conn", c.ID), zap.Error(err))
		s.RemoveConnection(c)
	})

	if err := s.handler.OnConnect(c); err != nil {
		s.log.Info("connection rejected", zap.String("conn", c.ID), zap.Error(err))
		s.RemoveConnection(c)
		return
	}
	if err := s.poller.Add(c); err != nil {
		s.log.Warn("poller add failed", zap.String("conn", c.ID), zap.Error(err))
		s.RemoveConnection(c)
		return
	}
	// Frames that arrived with the handshake sit in the reader, not the socket.
	if c.reader.Buffered() > 0 {
		s.dispatch(c)
	}

	s.log.Debug("new connection",
		zap.String("conn", c.ID),
		zap.String("remote", c.RemoteAddr),
		zap.Int("total", s.conns.Count()))
}

// handleHealth reports liveness, connection count, uptime and the registered
// stats as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
		Stats       any    `json:"stats,omitempty"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.stats != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		resp.Stats = s.stats(ctx)
		cancel()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// eventLoop waits for readable connections and hands each to a worker,
// bounded by the worker pool semaphore.
func (s *Server) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.poller.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.Warn("poller wait error", zap.Error(err))
			continue
		}
		for _, c := range conns {
			s.dispatch(c)
		}
	}
}

func (s *Server) dispatch(c *Connection) {
	s.workerPool <- struct{}{}
	go func() {
		defer func() { <-s.workerPool }()
		s.handleConn(c)
		s.poller.Resume(c)
	}()
}

// handleConn reads every frame that is ready on c.
func (s *Server) handleConn(c *Connection) {
	// Level-triggered epoll may report the same connection twice.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	for s.readFrame(c) {
		if c.reader.Buffered() == 0 {
			return
		}
	}
}

// readFrame reads one frame. It reports whether the connection is still
// usable.
func (s *Server) readFrame(c *Connection) bool {
	if s.config.ReadTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(c.reader, ws.StateServerSide)
	if err != nil {
		// A timeout means a stale readiness report; the heartbeat deals with
		// connections that are really dead.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false
		}
		s.RemoveConnection(c)
		return false
	}
	_ = c.Conn.SetReadDeadline(time.Time{})
	c.Touch()

	if header.OpCode.IsControl() {
		_, _ = io.Copy(io.Discard, reader)
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
			return false
		}
		return true
	}

	if header.Length > s.config.MaxFrameSize {
		s.log.Info("frame too large", zap.String("conn", c.ID), zap.Int64("length", header.Length))
		s.RemoveConnection(c)
		return false
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return false
		}
	}
	if len(data) > 0 {
		s.handler.OnMessage(c, data)
	}
	return true
}

// RemoveConnection unregisters and closes c and tells the handler. Only the
// first of several racing removals has any effect.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.poller.Remove(c)
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Dec()
	s.handler.OnDisconnect(c)
	s.log.Debug("connection closed", zap.String("conn", c.ID), zap.Int("total", s.conns.Count()))
}

// Send queues data for the connection with the given ID.
func (s *Server) Send(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return ErrConnNotFound
	}
	return c.Send(data)
}

// Connections exposes the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops accepting connections, closes every open one and releases
// the poller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	s.stopOnce.Do(func() { close(s.done) })

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("http shutdown error", zap.Error(err))
		}
	}
	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	if err := s.poller.Close(); err != nil {
		return fmt.Errorf("ws: close poller: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// ClientIP returns the first X-Forwarded-For hop, or the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
