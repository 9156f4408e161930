// Package client is a WebSocket client that speaks the SuddenConnect wire
// protocol, used by the load test to simulate participants.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrClosed is returned by waits that outlive the connection.
var ErrClosed = errors.New("client: connection closed")

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// Client is one simulated participant. Handlers run on the read goroutine.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	id       string
	metrics  Metrics
	handlers map[string]func(data json.RawMessage)
	session  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// New dials baseURL (for example ws://localhost:8080/ws) with the given
// query parameters and starts reading.
func New(ctx context.Context, baseURL string, query url.Values) (*Client, error) {
	u := baseURL
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		session:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)
	go c.readLoop()
	return c, nil
}

// Send encodes payload as event and writes it. It is safe for concurrent use.
func (c *Client) Send(event string, payload any) error {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: marshal %s: %w", event, err)
	}
	data, err := json.Marshal(protocol.Envelope{Event: event, Data: body})
	if err != nil {
		return fmt.Errorf("client: marshal %s: %w", event, err)
	}

	c.writeMu.Lock()
	err = wsutil.WriteClientMessage(c.conn, ws.OpText, data)
	c.writeMu.Unlock()

	c.mu.Lock()
	if err != nil {
		c.metrics.Errors++
	} else {
		c.metrics.MessagesSent++
	}
	c.mu.Unlock()
	return err
}

// On registers the handler for a server event, replacing any earlier one.
// It receives the event's data object.
func (c *Client) On(event string, handler func(data json.RawMessage)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// WaitForSession blocks until the server has announced this participant's id.
func (c *Client) WaitForSession(ctx context.Context) error {
	select {
	case <-c.session:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the participant id assigned by the server, or "" before
// session:created.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Metrics returns a copy of the connection's counters.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.mu.Lock()
				c.metrics.Errors++
				c.mu.Unlock()
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		if env.Event == protocol.EventSessionCreated && c.id == "" {
			var msg protocol.SessionCreatedMsg
			if json.Unmarshal(env.Data, &msg) == nil && msg.ID != "" {
				c.id = msg.ID
				close(c.session)
			}
		}
		handler := c.handlers[env.Event]
		c.mu.Unlock()

		if handler != nil {
			handler(env.Data)
		}
	}
}
