// Package channel maintains the persistent duplex websocket connection to
// the inference peer: outbound frame payloads and control messages, inbound
// classification messages.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"EMOTISENSE/go-client/internal/models"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
)

// Config carries the connection target. BaseURL, ClientID and Token come
// from the authentication collaborator; SessionID is minted per session.
type Config struct {
	BaseURL   string
	SessionID string
	ClientID  string
	Token     string
}

// Channel is one open connection. At most one reader goroutine feeds
// Incoming; writes are serialized internally so the session loop and the
// reset path may both send.
type Channel struct {
	conn     *websocket.Conn
	incoming chan []byte
	quit     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closing   atomic.Bool
	dead      atomic.Bool

	mu  sync.Mutex
	err error
}

// Dial opens the connection and starts the reader. A failure here is a
// channel-level error: the caller releases the capture device and enters
// the error phase.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("peer url: %w", err)
	}
	q := u.Query()
	q.Set("sessionId", cfg.SessionID)
	if cfg.ClientID != "" {
		q.Set("clientId", cfg.ClientID)
	}
	if cfg.Token != "" {
		q.Set("token", cfg.Token)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}

	c := &Channel{
		conn:     conn,
		incoming: make(chan []byte, 16),
		quit:     make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Incoming delivers raw inbound messages in arrival order. It is closed
// when the connection ends; Err then reports why.
func (c *Channel) Incoming() <-chan []byte {
	return c.incoming
}

// Open reports whether payloads may be enqueued for transmission: false
// once Close is called or the reader has seen the connection end, whichever
// comes first.
func (c *Channel) Open() bool {
	return !c.closing.Load() && !c.dead.Load()
}

// Err returns the terminal connection error, or nil if the channel closed
// cleanly (peer close frame or local Close).
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes one JSON message. Only a live frame or control message goes
// out per call; nothing is queued on failure.
func (c *Channel) Send(v interface{}) error {
	if !c.Open() {
		return fmt.Errorf("channel closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// SendControl writes a control message such as {"type":"reset"}.
func (c *Channel) SendControl(typ string) error {
	return c.Send(models.ControlMessage{Type: typ})
}

// Close shuts the connection down. Idempotent; the reader drains and
// Incoming closes with Err() == nil.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.quit)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
	})
	return nil
}

func (c *Channel) readPump() {
	defer close(c.incoming)
	defer c.dead.Store(true)
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			// a normal or going-away close frame is a clean shutdown;
			// every other read error is a channel failure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) &&
				(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
				return
			}
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		select {
		case c.incoming <- data:
		case <-c.quit:
			// consumer is gone; don't strand the reader on a full buffer
			return
		}
	}
}
