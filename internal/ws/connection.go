package ws

import (
	"bufio"
	"errors"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	ErrConnNotFound  = errors.New("ws: connection not found")
	ErrConnClosed    = errors.New("ws: connection closed")
	ErrSendQueueFull = errors.New("ws: send queue full")
)

// Connection represents a single WebSocket client connection. Outbound frames
// go through a bounded queue drained by the connection's writer goroutine,
// so callers never block on socket I/O.
type Connection struct {
	ID         string     // participant ID (UUID)
	Conn       net.Conn   // underlying TCP connection
	Fd         int        // file descriptor for epoll lookups
	RemoteAddr string     // client IP, honoring X-Forwarded-For
	Query      url.Values // query parameters of the upgrade request
	CreatedAt  time.Time

	reader     *bufio.Reader // reads frames, including bytes buffered during the upgrade
	writeMu    sync.Mutex    // serializes frame writes
	processing int32         // atomic flag: 0 = idle, 1 = being read by a worker
	lastSeen   atomic.Int64  // unix nanos of the last inbound frame

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newConnection(id string, conn net.Conn, reader *bufio.Reader, queueSize int) *Connection {
	if reader == nil {
		reader = bufio.NewReader(conn)
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	c := &Connection{
		ID:        id,
		Conn:      conn,
		Fd:        socketFD(conn),
		CreatedAt: time.Now(),
		reader:    reader,
		send:      make(chan []byte, queueSize),
		closed:    make(chan struct{}),
	}
	c.Touch()
	return c
}

// Send queues a text frame for delivery. It never blocks: a full queue means
// the client is not keeping up and the frame is rejected.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// WriteMessage writes a text frame immediately.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Touch records inbound activity.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last inbound activity.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Closed is closed once the connection has been shut down.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// Close stops the writer and closes the network connection. It is safe to
// call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.Conn.Close()
	})
	return err
}

// writeLoop drains the send queue until the connection closes. onError is
// called once with the first write failure.
func (c *Connection) writeLoop(timeout time.Duration, onError func(error)) {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			if timeout > 0 {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			err := c.WriteMessage(data)
			_ = c.Conn.SetWriteDeadline(time.Time{})
			if err != nil {
				onError(err)
				return
			}
		}
	}
}

// ConnectionManager is a thread-safe registry of connections by ID.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove unregisters a connection and closes it. It returns false if the
// connection was already gone, so racing removers clean up only once.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		_ = conn.Close()
	}
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
