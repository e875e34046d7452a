package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	handshakeTimeout = 15 * time.Second
)

var (
	ErrNotConnected = errors.New("signaling transport not connected")
	ErrClosed       = errors.New("signaling transport closed")
)

// Transport is a bidirectional message pipe to the relay.
type Transport interface {
	Connect(ctx context.Context) error
	Send(msg *Message) error
	// Incoming is closed when the connection ends for any reason.
	Incoming() <-chan *Message
	Close() error
}

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	serverURL string
	dialer    *websocket.Dialer

	mu        sync.Mutex
	connected bool
	closed    bool

	incoming  chan *Message
	outgoing  chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*Client)(nil)

// NewClient creates a new signaling client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		dialer: &websocket.Dialer{
			NetDialContext:   dns.DialContext,
			HandshakeTimeout: handshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		incoming: make(chan *Message, 32),
		outgoing: make(chan *Message, 32),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.connected:
		c.mu.Unlock()
		return errors.New("signaling transport already connected")
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.connected = true
	c.mu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump(conn)
	go c.writePump(conn)

	slog.Debug("signaling connected", "url", u.String())
	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		close(c.incoming)
		c.shutdown()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("signaling read error", "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("dropping malformed signaling message", "err", err)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(message); err != nil {
				slog.Debug("signaling write error", "err", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the write pump. Messages are written in the
// order Send is called.
func (c *Client) Send(msg *Message) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel for receiving messages.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Close closes the WebSocket connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	connected := c.connected
	c.mu.Unlock()

	c.shutdown()

	// Without a read pump nobody else closes incoming.
	if !connected {
		close(c.incoming)
	}
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
