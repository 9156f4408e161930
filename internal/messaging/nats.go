// Package messaging provides the NATS plumbing of the server: a client
// wrapper with keyed subscriptions, the room bus that fans frames out to the
// members of a room, and the publisher of pairing lifecycle events.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS subject prefixes.
const (
	SubjectRoom   = "room"           // + .<room_id>
	SubjectEvents = "pairing.events" // + .<event_kind>
)

// RoomSubject returns the subject a room's frames are published on.
func RoomSubject(roomID string) string {
	return SubjectRoom + "." + roomID
}

// Client wraps the NATS connection and tracks subscriptions by key so they
// can be drained individually or all at once.
type Client struct {
	conn *nats.Conn
	log  *zap.Logger
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "suddenconnect",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Connect dials NATS and returns a ready client. It fails if the initial
// connection fails.
func Connect(config Config, logger *zap.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Warn("nats async error", zap.String("subject", subject), zap.Error(err))
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect %s: %w", config.URL, err)
	}
	logger.Info("nats connected", zap.String("url", nc.ConnectedUrl()))

	return &Client{
		conn: nc,
		log:  logger,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to subject.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler on subject under key. A subscription already
// held under key is drained first.
func (c *Client) Subscribe(key, subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	old := c.subs[key]
	c.subs[key] = sub
	c.mu.Unlock()

	if old != nil {
		c.drain(key, old)
	}
	return nil
}

// Unsubscribe drains the subscription held under key: interest is removed,
// but messages already routed to it are still handled. It reports whether
// key was subscribed.
func (c *Client) Unsubscribe(key string) bool {
	c.mu.Lock()
	sub, ok := c.subs[key]
	delete(c.subs, key)
	c.mu.Unlock()

	if ok {
		c.drain(key, sub)
	}
	return ok
}

func (c *Client) drain(key string, sub *nats.Subscription) {
	if err := sub.Drain(); err != nil {
		c.log.Debug("nats drain failed", zap.String("key", key), zap.Error(err))
	}
}

// Subscriptions returns the number of live keyed subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Flush round-trips to the server, so everything published before it has
// been processed by the server.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close drains every subscription and the connection.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	for key, sub := range subs {
		c.drain(key, sub)
	}
	if err := c.conn.Drain(); err != nil {
		c.log.Warn("nats connection drain failed", zap.Error(err))
	}
	c.log.Info("nats client closed")
}
