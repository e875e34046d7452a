package call

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const waitFor = 3 * time.Second

// fakeSignal is an in-memory relay connection.
type fakeSignal struct {
	mu       sync.Mutex
	sent     []*signaling.Message
	incoming chan *signaling.Message
	closed   bool
	closes   int
	connErr  error
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{incoming: make(chan *signaling.Message, 64)}
}

func (f *fakeSignal) Connect(context.Context) error { return f.connErr }

func (f *fakeSignal) Send(msg *signaling.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return signaling.ErrClosed
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSignal) Incoming() <-chan *signaling.Message { return f.incoming }

func (f *fakeSignal) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closeLocked()
	return nil
}

func (f *fakeSignal) closeLocked() {
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
}

// drop simulates the relay connection going away.
func (f *fakeSignal) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *fakeSignal) push(t *testing.T, msgType string, payload any) {
	t.Helper()
	msg, err := signaling.NewMessage(msgType, payload)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.False(t, f.closed, "push after close")
	f.incoming <- msg
}

func (f *fakeSignal) sentOfType(msgType string) []*signaling.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*signaling.Message
	for _, m := range f.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSignal) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakePeer records what the session asks of its peer connection.
type fakePeer struct {
	opts peer.Options

	mu        sync.Mutex
	calls     []string
	tracks    []media.Track
	control   [][]byte
	closes    int
	remoteErr error
}

func (p *fakePeer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePeer) AddTrack(t media.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) CreateOffer(context.Context) (peer.Description, error) {
	p.record("create:offer")
	return peer.Description{Type: peer.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer(context.Context) (peer.Description, error) {
	p.record("create:answer")
	return peer.Description{Type: peer.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetRemoteDescription(d peer.Description) error {
	p.record("remote:" + string(d.Type))
	return p.remoteErr
}

func (p *fakePeer) AddICECandidate(c peer.Candidate) error {
	p.record("candidate:" + c.Candidate)
	return nil
}

func (p *fakePeer) SendControl(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closes > 0 {
		return peer.ErrClosed
	}
	p.control = append(p.control, data)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePeer) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePeer) trackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

func (p *fakePeer) controlMessages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.control...)
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakePeers struct {
	mu        sync.Mutex
	peers     []*fakePeer
	remoteErr error
}

func (f *fakePeers) NewTransport(opts peer.Options) (peer.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{opts: opts, remoteErr: f.remoteErr}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakePeers) last(t *testing.T) *fakePeer {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > 0 }, waitFor, 5*time.Millisecond, "no peer transport created")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[len(f.peers)-1]
}

type fakeTrack struct {
	id   string
	kind media.Kind

	mu      sync.Mutex
	enabled bool
	stops   int
}

func (t *fakeTrack) ID() string       { return t.id }
func (t *fakeTrack) Kind() media.Kind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(e bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = e
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// fakeMedia hands out fresh tracks. With a gate set, Open blocks until the
// gate is closed or the context ends.
type fakeMedia struct {
	gate chan struct{}
	err  error

	mu     sync.Mutex
	opened []*fakeTrack
}

func (m *fakeMedia) Open(ctx context.Context, c media.Constraints) ([]media.Track, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.opened)
	tracks := []media.Track{m.newTrack(fmt.Sprintf("audio-%d", n), media.KindAudio)}
	if c.Video != nil {
		tracks = append(tracks, m.newTrack(fmt.Sprintf("video-%d", n), media.KindVideo))
	}
	return tracks, nil
}

func (m *fakeMedia) newTrack(id string, kind media.Kind) *fakeTrack {
	t := &fakeTrack{id: id, kind: kind, enabled: true}
	m.opened = append(m.opened, t)
	return t
}

// allStopped reports whether every opened track was stopped exactly once.
func (m *fakeMedia) allStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.opened {
		if t.stopCount() != 1 {
			return false
		}
	}
	return true
}

func (m *fakeMedia) openedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opened)
}

type harness struct {
	t     *testing.T
	media *fakeMedia
	peers *fakePeers
	clock *clock.Mock
	mgr   *Manager

	mu         sync.Mutex
	signals    []*fakeSignal
	connectErr error
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:     t,
		media: &fakeMedia{},
		peers: &fakePeers{},
		clock: clock.NewMock(),
	}
	h.mgr = NewManager(Deps{
		Media: h.media,
		Signaling: func(string) signaling.Transport {
			h.mu.Lock()
			defer h.mu.Unlock()
			s := newFakeSignal()
			s.connErr = h.connectErr
			h.signals = append(h.signals, s)
			return s
		},
		Peers:        h.peers,
		Clock:        h.clock,
		MediaTimeout: 10 * time.Second,
	})
	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) start(mt media.Type) *Handle {
	h.t.Helper()
	handle, err := h.mgr.StartSession(context.Background(), Options{
		RoomID:      "amber-falcon-river-stone",
		MediaType:   mt,
		Participant: "alice",
	})
	require.NoError(h.t, err)
	return handle
}

// signal returns the relay connection of the most recent session.
func (h *harness) signal() *fakeSignal {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.signals) > 0
	}, waitFor, 5*time.Millisecond, "signaling transport never created")

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signals[len(h.signals)-1]
}

func waitState(t *testing.T, h *Handle, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.State() == want }, waitFor, 5*time.Millisecond,
		"want %s, state is %s", want, h.State())
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(waitFor):
		t.Fatalf("session did not finish, state %s", h.State())
	}
}

// connectAsInitiator drives a session through a successful negotiation.
func connectAsInitiator(t *testing.T, h *harness, handle *Handle) (*fakeSignal, *fakePeer) {
	t.Helper()
	sig := h.signal()
	sig.push(t, signaling.MessageTypeWaitingForPeer, nil)
	sig.push(t, signaling.MessageTypeInitiateCall, nil)
	waitState(t, handle, StateNegotiating)

	p := h.peers.last(t)
	require.Eventually(t, func() bool { return len(sig.sentOfType(signaling.MessageTypeOffer)) == 1 },
		waitFor, 5*time.Millisecond, "offer never sent")

	sig.push(t, signaling.MessageTypeAnswer, signaling.SDPPayload{Type: "answer", SDP: "answer-sdp"})
	require.Eventually(t, func() bool { return contains(p.callLog(), "remote:answer") },
		waitFor, 5*time.Millisecond, "answer never applied")

	p.opts.Handlers.OnConnectionState(peer.StateConnected)
	waitState(t, handle, StateConnected)
	return sig, p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
