//go:build !linux

package ws

import (
	"errors"
	"net"
	"sync"
	"time"
)

// poller is the portable fallback for platforms without epoll. One goroutine
// per connection peeks at the buffered reader, which does not consume bytes,
// and reports the connection as ready. It then waits for Resume before
// peeking again, so the monitor and the reading worker never touch the
// reader at the same time.
type poller struct {
	mu     sync.Mutex
	conns  map[*Connection]chan struct{}
	ready  chan *Connection
	done   chan struct{}
	closed bool
}

func newPoller() (*poller, error) {
	return &poller{
		conns: make(map[*Connection]chan struct{}),
		ready: make(chan *Connection, 128),
		done:  make(chan struct{}),
	}, nil
}

func (p *poller) Add(c *Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("ws: poller closed")
	}
	resume := make(chan struct{}, 1)
	p.conns[c] = resume
	go p.monitor(c, resume)
	return nil
}

func (p *poller) monitor(c *Connection, resume chan struct{}) {
	for {
		_, err := c.reader.Peek(1)
		if !p.registered(c) {
			return
		}
		select {
		case p.ready <- c:
		case <-p.done:
			return
		}
		if err != nil {
			// The worker sees the same error and removes the connection.
			return
		}
		select {
		case <-resume:
		case <-p.done:
			return
		}
	}
}

func (p *poller) registered(c *Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.conns[c]
	return ok
}

func (p *poller) Remove(c *Connection) error {
	p.mu.Lock()
	delete(p.conns, c)
	p.mu.Unlock()
	return nil
}

// Wait blocks until at least one connection is ready, then collects any
// others that are ready without blocking.
func (p *poller) Wait() ([]*Connection, error) {
	select {
	case first := <-p.ready:
		conns := []*Connection{first}
		for {
			select {
			case c := <-p.ready:
				conns = append(conns, c)
			default:
				return conns, nil
			}
		}
	case <-p.done:
		return nil, net.ErrClosed
	case <-time.After(100 * time.Millisecond):
		return nil, nil
	}
}

// Resume lets the monitor of c look for the next frame.
func (p *poller) Resume(c *Connection) {
	p.mu.Lock()
	resume, ok := p.conns[c]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case resume <- struct{}{}:
	default:
	}
}

func (p *poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.conns = make(map[*Connection]chan struct{})
	return nil
}

// socketFD is unused by the fallback poller.
func socketFD(net.Conn) int {
	return -1
}
