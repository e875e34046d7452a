package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	hub *Hub
	srv *httptest.Server
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	cfg := &config.RelayConfig{Port: 8080, ReadLimit: 64 * 1024, SendBuffer: 16, ShutdownTimeout: time.Second}
	srv := httptest.NewServer(NewServer(hub, cfg).Handler())

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testRelay{hub: hub, srv: srv}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg *signaling.Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func expect(t *testing.T, conn *websocket.Conn, msgType string) *signaling.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg signaling.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, msgType, msg.Type, "payload: %s", string(msg.Payload))
	return &msg
}

func expectNothing(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var msg signaling.Message
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "unexpected message %q", msg.Type)
}

func join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	send(t, conn, &signaling.Message{Type: signaling.MessageTypeJoin, RoomID: roomID})
}

func pair(t *testing.T, r *testRelay, roomID string) (host, guest *websocket.Conn) {
	t.Helper()
	host = r.dial(t)
	join(t, host, roomID)
	expect(t, host, signaling.MessageTypeWaitingForPeer)

	guest = r.dial(t)
	join(t, guest, roomID)
	expect(t, host, signaling.MessageTypeInitiateCall)
	expect(t, guest, signaling.MessageTypePeerJoined)
	return host, guest
}

func TestHub_OneInitiatorPerPairing(t *testing.T) {
	r := newTestRelay(t)

	for _, room := range []string{"r1", "r2", "r3"} {
		host, guest := pair(t, r, room)
		expectNothing(t, host)
		expectNothing(t, guest)

		n, err := r.hub.RoomSize(context.Background(), room)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
}

func TestHub_ThirdJoinerGetsRoomFull(t *testing.T) {
	r := newTestRelay(t)
	host, guest := pair(t, r, "r1")

	third := r.dial(t)
	join(t, third, "r1")
	expect(t, third, signaling.MessageTypeRoomFull)

	expectNothing(t, host)
	expectNothing(t, guest)

	n, err := r.hub.RoomSize(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHub_RelaysNegotiationVerbatim(t *testing.T) {
	r := newTestRelay(t)
	host, guest := pair(t, r, "r1")

	offer, err := signaling.NewMessage(signaling.MessageTypeOffer, signaling.SDPPayload{Type: "offer", SDP: "v=0 offer"})
	require.NoError(t, err)
	send(t, host, offer)
	got := expect(t, guest, signaling.MessageTypeOffer)
	assert.JSONEq(t, string(offer.Payload), string(got.Payload))
	assert.Equal(t, "r1", got.RoomID)

	answer, err := signaling.NewMessage(signaling.MessageTypeAnswer, signaling.SDPPayload{Type: "answer", SDP: "v=0 answer"})
	require.NoError(t, err)
	send(t, guest, answer)
	got = expect(t, host, signaling.MessageTypeAnswer)
	assert.JSONEq(t, string(answer.Payload), string(got.Payload))

	// Candidates keep their order from a single sender.
	for i := 0; i < 5; i++ {
		c, err := signaling.NewMessage(signaling.MessageTypeICECandidate, signaling.CandidatePayload{Candidate: "candidate:" + string(rune('a'+i))})
		require.NoError(t, err)
		send(t, host, c)
	}
	for i := 0; i < 5; i++ {
		got := expect(t, guest, signaling.MessageTypeICECandidate)
		var p signaling.CandidatePayload
		require.NoError(t, json.Unmarshal(got.Payload, &p))
		assert.Equal(t, "candidate:"+string(rune('a'+i)), p.Candidate)
	}
}

func TestHub_PeerDisconnectNotifiesRemaining(t *testing.T) {
	r := newTestRelay(t)
	host, guest := pair(t, r, "r1")

	guest.Close()
	expect(t, host, signaling.MessageTypePeerDisconnected)

	// The remaining member waits for the next joiner and initiates again.
	next := r.dial(t)
	join(t, next, "r1")
	expect(t, host, signaling.MessageTypeInitiateCall)
	expect(t, next, signaling.MessageTypePeerJoined)
}

func TestHub_HostLeavesGuestPromoted(t *testing.T) {
	r := newTestRelay(t)
	host, guest := pair(t, r, "r1")

	host.Close()
	expect(t, guest, signaling.MessageTypePeerDisconnected)

	next := r.dial(t)
	join(t, next, "r1")
	expect(t, guest, signaling.MessageTypeInitiateCall)
	expect(t, next, signaling.MessageTypePeerJoined)
}

func TestHub_EmptyRoomDeleted(t *testing.T) {
	r := newTestRelay(t)
	conn := r.dial(t)
	join(t, conn, "lonely")
	expect(t, conn, signaling.MessageTypeWaitingForPeer)
	conn.Close()

	require.Eventually(t, func() bool {
		n, err := r.hub.RoomSize(context.Background(), "lonely")
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHub_Errors(t *testing.T) {
	r := newTestRelay(t)

	conn := r.dial(t)
	offer, err := signaling.NewMessage(signaling.MessageTypeOffer, signaling.SDPPayload{Type: "offer", SDP: "v=0"})
	require.NoError(t, err)
	send(t, conn, offer)
	msg := expect(t, conn, signaling.MessageTypeError)
	assert.Contains(t, string(msg.Payload), "join a room first")

	join(t, conn, "")
	expect(t, conn, signaling.MessageTypeError)

	join(t, conn, "r1")
	expect(t, conn, signaling.MessageTypeWaitingForPeer)
	join(t, conn, "r2")
	msg = expect(t, conn, signaling.MessageTypeError)
	assert.Contains(t, string(msg.Payload), "Already in a room")

	send(t, conn, &signaling.Message{Type: signaling.MessageTypeInitiateCall})
	expect(t, conn, signaling.MessageTypeError)
}

func TestServer_HealthAndRoom(t *testing.T) {
	r := newTestRelay(t)

	resp, err := http.Get(r.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(r.srv.URL + "/room")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RoomID string `json:"room_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, strings.Split(body.RoomID, "-"), 4)

	resp, err = http.Get(r.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateRoomID_SkipsTaken(t *testing.T) {
	calls := 0
	id, err := generateRoomID(func(string) bool {
		calls++
		return calls < 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	words := strings.Split(id, "-")
	require.Len(t, words, roomIDWords)
}

func TestHub_SlowHostDroppedWhilePairing(t *testing.T) {
	h := NewHub()
	host := &Client{ID: "host", send: make(chan *signaling.Message, 1)}
	guest := &Client{ID: "guest", send: make(chan *signaling.Message, 4)}
	h.clients[host] = true
	h.clients[guest] = true

	joinMsg := func() *signaling.Message {
		return &signaling.Message{Type: signaling.MessageTypeJoin, RoomID: "r"}
	}

	// waiting_for_peer fills the host's buffer and the host never reads it.
	h.handle(host, joinMsg())
	h.handle(guest, joinMsg())

	assert.False(t, h.clients[host], "slow host kept")

	require.Len(t, guest.send, 1, "guest got peer_disconnected or nothing")
	msg := <-guest.send
	assert.Equal(t, signaling.MessageTypeWaitingForPeer, msg.Type)

	room := h.rooms["r"]
	require.NotNil(t, room)
	assert.Same(t, guest, room.Host)
	assert.Nil(t, room.Guest)
	assert.Equal(t, "r", guest.RoomID)
}

func TestRoom_Remove(t *testing.T) {
	a, b := &Client{ID: "a"}, &Client{ID: "b"}
	room := &Room{ID: "r", Host: a, Guest: b}

	assert.Equal(t, b, room.Other(a))
	room.remove(a)
	assert.Equal(t, b, room.Host)
	assert.Nil(t, room.Guest)
	assert.Equal(t, 1, room.Size())
}
