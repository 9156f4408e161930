//go:build linux

package ws

import (
	"errors"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// waitTimeoutMs bounds each epoll_wait so the event loop notices shutdown.
const waitTimeoutMs = 100

// poller wraps Linux epoll. Instead of spawning a reading goroutine per
// connection, file descriptors are registered with the kernel and the event
// loop is told only when data is ready to read.
type poller struct {
	fd     int
	mu     sync.RWMutex
	conns  map[int]*Connection
	events []unix.EpollEvent
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &poller{
		fd:     fd,
		conns:  make(map[int]*Connection),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// Add registers the connection for read readiness (EPOLLIN | EPOLLHUP).
func (p *poller) Add(c *Connection) error {
	if c.Fd < 0 {
		return errors.New("ws: connection has no file descriptor")
	}
	if err := unix.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, c.Fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(c.Fd),
	}); err != nil {
		return err
	}

	p.mu.Lock()
	p.conns[c.Fd] = c
	p.mu.Unlock()
	return nil
}

// Remove unregisters the connection. It tolerates descriptors that were
// already closed.
func (p *poller) Remove(c *Connection) error {
	p.mu.Lock()
	if p.conns[c.Fd] == c {
		delete(p.conns, c.Fd)
	}
	p.mu.Unlock()

	if c.Fd < 0 {
		return nil
	}
	err := unix.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, c.Fd, nil)
	if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
		return nil
	}
	return err
}

// Wait returns the connections that have pending data. It returns an empty
// slice when the wait times out.
func (p *poller) Wait() ([]*Connection, error) {
	n, err := unix.EpollWait(p.fd, p.events, waitTimeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}

	p.mu.RLock()
	conns := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		if c, ok := p.conns[int(p.events[i].Fd)]; ok {
			conns = append(conns, c)
		}
	}
	p.mu.RUnlock()
	return conns, nil
}

// Resume is a no-op: epoll is level-triggered and re-reports unread data.
func (p *poller) Resume(*Connection) {}

// Close closes the epoll file descriptor.
func (p *poller) Close() error {
	p.mu.Lock()
	p.conns = make(map[int]*Connection)
	p.mu.Unlock()
	return unix.Close(p.fd)
}

// socketFD extracts the descriptor through SyscallConn, which unlike File()
// does not duplicate it.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
