package relay

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Hub owns every room and client. All state is touched only by the Run
// goroutine; everything else talks to it over channels.
type Hub struct {
	rooms   map[string]*Room
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan *inbound
	queries    chan func()

	done chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is cancelled. On return every client's
// send channel is closed, which ends its connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			metrics.ConnectedClients.Inc()
			slog.Debug("relay client registered", "client_id", client.ID)

		case client := <-h.unregister:
			slog.Debug("relay client unregistered", "client_id", client.ID)
			h.removeClient(client)

		case in := <-h.inbound:
			h.handle(in.client, in.msg)

		case query := <-h.queries:
			query()
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for c := range h.clients {
		close(c.send)
	}
	metrics.ConnectedClients.Sub(float64(len(h.clients)))
	metrics.ActiveRooms.Sub(float64(len(h.rooms)))
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]*Room)
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in *inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// query runs fn on the hub goroutine and waits for it.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(finished) }:
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// RoomSize reports how many members roomID currently holds.
func (h *Hub) RoomSize(ctx context.Context, roomID string) (int, error) {
	var n int
	err := h.query(ctx, func() {
		if room, ok := h.rooms[roomID]; ok {
			n = room.Size()
		}
	})
	return n, err
}

// NewRoomID returns a fresh room ID that no current room uses.
func (h *Hub) NewRoomID(ctx context.Context) (string, error) {
	var (
		id     string
		genErr error
	)
	err := h.query(ctx, func() {
		id, genErr = generateRoomID(func(candidate string) bool {
			_, ok := h.rooms[candidate]
			return ok
		})
	})
	if err != nil {
		return "", err
	}
	return id, genErr
}

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	if !h.clients[c] {
		return
	}

	switch {
	case msg.Type == signaling.MessageTypeJoin:
		h.join(c, msg)
	case signaling.IsRelayed(msg.Type):
		h.relay(c, msg)
	default:
		slog.Debug("relay ignoring message", "client_id", c.ID, "type", msg.Type)
		h.deliver(c, errorMessage("Unsupported message type"))
	}
}

// join places c into a room. The first member waits; when a second member
// arrives the waiting one is told to initiate and the newcomer is told a
// peer joined. Anyone after that is turned away with room_full.
func (h *Hub) join(c *Client, msg *signaling.Message) {
	if c.RoomID != "" {
		metrics.RecordJoin(metrics.JoinRejected)
		h.deliver(c, errorMessage("Already in a room"))
		return
	}
	if err := msg.Validate(); err != nil {
		metrics.RecordJoin(metrics.JoinRejected)
		h.deliver(c, errorMessage("room_id is required"))
		return
	}

	roomID := msg.RoomID
	room, ok := h.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, Host: c}
		h.rooms[roomID] = room
		c.RoomID = roomID
		metrics.ActiveRooms.Inc()
		metrics.RecordJoin(metrics.JoinWaiting)

		slog.Info("room created", "room_id", roomID, "client_id", c.ID)
		h.deliver(c, notice(signaling.MessageTypeWaitingForPeer, roomID))
		return
	}

	if room.Size() >= 2 {
		metrics.RecordJoin(metrics.JoinFull)
		slog.Info("room join rejected, room full", "room_id", roomID, "client_id", c.ID)
		h.deliver(c, notice(signaling.MessageTypeRoomFull, roomID))
		return
	}

	// The host is told first. If that drops it, the room is gone and the
	// newcomer starts a fresh one as its waiting member.
	host := room.Host
	h.deliver(host, notice(signaling.MessageTypeInitiateCall, roomID))
	if !h.clients[host] {
		slog.Info("room host dropped while pairing", "room_id", roomID, "client_id", c.ID)
		h.join(c, msg)
		return
	}

	room.Guest = c
	c.RoomID = roomID
	metrics.RecordJoin(metrics.JoinPaired)

	slog.Info("room paired", "room_id", roomID, "host", host.ID, "guest", c.ID)
	h.deliver(c, notice(signaling.MessageTypePeerJoined, roomID))
}

// relay forwards a negotiation message verbatim to the other room member.
func (h *Hub) relay(c *Client, msg *signaling.Message) {
	if c.RoomID == "" {
		h.deliver(c, errorMessage("You must join a room first"))
		return
	}

	room, ok := h.rooms[c.RoomID]
	if !ok {
		h.deliver(c, errorMessage("Room not found"))
		return
	}

	target := room.Other(c)
	if target == nil {
		slog.Debug("relay dropping message, no peer in room", "room_id", room.ID, "type", msg.Type)
		return
	}

	msg.RoomID = room.ID
	metrics.RecordRelayed(msg.Type)
	h.deliver(target, msg)
}

// deliver never blocks the hub. A client whose buffer is full is dropped.
func (h *Hub) deliver(c *Client, msg *signaling.Message) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		slog.Warn("relay client too slow, dropping", "client_id", c.ID)
		metrics.DroppedClients.Inc()
		h.removeClient(c)
	}
}

// removeClient detaches c from its room, tells the remaining member and
// closes c's send channel. Calling it for an unknown client does nothing.
func (h *Hub) removeClient(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	metrics.ConnectedClients.Dec()

	if room, ok := h.rooms[c.RoomID]; ok {
		room.remove(c)
		if room.Size() == 0 {
			delete(h.rooms, room.ID)
			metrics.ActiveRooms.Dec()
			slog.Info("room deleted", "room_id", room.ID)
		} else {
			slog.Info("peer left room", "room_id", room.ID, "client_id", c.ID)
			h.deliver(room.Host, notice(signaling.MessageTypePeerDisconnected, room.ID))
		}
	}

	close(c.send)
}
