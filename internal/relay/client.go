package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a single websocket connection to the relay.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn

	// RoomID is owned by the hub goroutine.
	RoomID string

	// send is drained by writePump. Only the hub closes it.
	send chan *signaling.Message
}

func newClient(hub *Hub, conn *websocket.Conn, id string, buffer int) *Client {
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *signaling.Message, buffer),
	}
}

// readPump pumps messages from the websocket connection to the hub.
//
// There is at most one reader on a connection; all reads happen here.
func (c *Client) readPump(readLimit int64) {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Debug("relay read error", "client_id", c.ID, "err", err)
			}
			return
		}

		var msg signaling.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("relay dropping malformed message", "client_id", c.ID, "err", err)
			continue
		}

		if !c.hub.submit(&inbound{client: c, msg: &msg}) {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// There is at most one writer on a connection; all writes happen here.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				slog.Debug("relay write error", "client_id", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
