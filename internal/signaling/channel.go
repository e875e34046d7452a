package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrRoomFull is returned by Send once the relay reported the room full.
var ErrRoomFull = errors.New("room is full")

// Channel is a room-scoped signaling channel on top of a Transport. It turns
// wire messages into typed events and enforces the room-full terminal rule.
type Channel struct {
	transport Transport
	events    chan Event
	stop      chan struct{}

	mu           sync.Mutex
	roomID       string
	started      bool
	roomFull     bool
	disconnected bool
	stopOnce     sync.Once
}

// NewChannel wraps t. The channel owns t from here on.
func NewChannel(t Transport) *Channel {
	return &Channel{
		transport: t,
		events:    make(chan Event, 64),
		stop:      make(chan struct{}),
	}
}

// Connect opens the transport and announces membership of roomID.
func (c *Channel) Connect(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty room id", ErrInvalidMessage)
	}

	c.mu.Lock()
	switch {
	case c.disconnected:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return errors.New("signaling channel already connected")
	}
	c.mu.Unlock()

	if err := c.transport.Connect(ctx); err != nil {
		return err
	}

	join := &Message{Type: MessageTypeJoin, RoomID: roomID}
	if err := c.transport.Send(join); err != nil {
		c.transport.Close()
		return fmt.Errorf("send join: %w", err)
	}

	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return ErrClosed
	}
	c.roomID = roomID
	c.started = true
	c.mu.Unlock()

	go c.dispatch()

	slog.Debug("joined signaling room", "room_id", roomID)
	return nil
}

func (c *Channel) dispatch() {
	defer close(c.events)

	for msg := range c.transport.Incoming() {
		ev, err := decodeEvent(msg)
		if err != nil {
			slog.Warn("ignoring signaling message", "type", msg.Type, "err", err)
			continue
		}

		if ev.Kind == EventRoomFull {
			c.mu.Lock()
			c.roomFull = true
			c.mu.Unlock()
		}

		if !c.deliver(ev) {
			return
		}
	}

	c.mu.Lock()
	local := c.disconnected
	c.mu.Unlock()
	if !local {
		c.deliver(Event{Kind: EventDisconnected, Err: ErrClosed})
	}
}

func (c *Channel) deliver(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stop:
		return false
	}
}

// Events yields relay events in arrival order. It is closed after
// Disconnect or after a transport drop has been reported.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Send transmits a negotiation event to the other room member.
func (c *Channel) Send(ev Event) error {
	c.mu.Lock()
	roomFull, disconnected, started := c.roomFull, c.disconnected, c.started
	c.mu.Unlock()

	switch {
	case roomFull:
		return ErrRoomFull
	case disconnected:
		return ErrClosed
	case !started:
		return ErrNotConnected
	}

	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return c.transport.Send(msg)
}

// RoomID returns the joined room, or "" before Connect succeeds.
func (c *Channel) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Disconnect closes the transport. Calling it again is a no-op.
func (c *Channel) Disconnect() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.disconnected = true
		started := c.started
		c.mu.Unlock()

		close(c.stop)
		if err := c.transport.Close(); err != nil {
			slog.Debug("signaling transport close", "err", err)
		}
		if !started {
			close(c.events)
		}
	})
}
