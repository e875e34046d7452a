package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/version"
)

const inboxSize = 64

// Session is one call attempt. All mutable call state is owned by the run
// goroutine; every other goroutine talks to it through post.
type Session struct {
	id     string
	opts   Options
	deps   Deps
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	inbox   chan event
	stopped chan struct{} // closed when teardown starts
	done    chan struct{} // closed after the final state is published
	postMu  sync.RWMutex

	coord        *Coordinator
	teardownOnce sync.Once

	// Owned by run.
	state       State
	role        Role
	stream      *media.Stream
	channel     *signaling.Channel
	transport   peer.Transport
	remoteSet   bool
	pending     []peer.Candidate
	heldOffer   string
	offerSent   bool
	controlOpen bool

	pub published
}

// published is the observable copy of session state.
type published struct {
	mu     sync.Mutex
	snap   Snapshot
	subs   map[int]chan Notification
	nextID int
	closed bool
}

func newSession(parent context.Context, id string, opts Options, deps Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ctx:     ctx,
		cancel:  cancel,
		id:      id,
		opts:    opts,
		deps:    deps,
		log:     slog.With("session_id", id, "room_id", opts.RoomID),
		inbox:   make(chan event, inboxSize),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		coord:   NewCoordinator(deps.Clock, deps.MediaTimeout),
	}
	s.pub.subs = make(map[int]chan Notification)
	s.pub.snap = Snapshot{
		ID:          id,
		RoomID:      opts.RoomID,
		MediaType:   opts.MediaType,
		Participant: opts.Participant,
		State:       StateIdle,
		History:     []State{StateIdle},
		StartedAt:   deps.Clock.Now(),
	}
	return s
}

// post hands ev to the run loop. It returns false once teardown has begun.
func (s *Session) post(ev event) bool {
	s.postMu.RLock()
	defer s.postMu.RUnlock()

	select {
	case <-s.stopped:
		return false
	default:
	}
	select {
	case s.inbox <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Session) run() {
	defer s.finish()

	s.transition(StateAcquiringMedia, nil)
	s.channel = signaling.NewChannel(s.deps.Signaling(s.opts.RoomID))

	go s.acquireMedia()
	go s.connectChannel()
	go s.awaitRole()

	for !s.state.Terminal() {
		select {
		case ev := <-s.inbox:
			s.handle(ev)
		case <-s.ctx.Done():
			s.log.Debug("session context ended")
			s.teardown(nil)
		}
	}
}

func (s *Session) acquireMedia() {
	stream, err := media.NewSource(s.deps.Media).Acquire(s.ctx, s.opts.MediaType)
	if !s.post(mediaResult{stream: stream, err: err}) && stream != nil {
		stream.Release()
	}
}

func (s *Session) connectChannel() {
	err := s.channel.Connect(s.ctx, s.opts.RoomID)
	if !s.post(channelResult{err: err}) || err != nil {
		return
	}
	for ev := range s.channel.Events() {
		if !s.post(signalEvent{ev: ev}) {
			return
		}
	}
}

func (s *Session) awaitRole() {
	role, err := s.coord.Wait(s.ctx)
	s.post(roleResult{role: role, err: err})
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case mediaResult:
		s.onMedia(ev)
	case channelResult:
		if ev.err != nil {
			s.fail(newError("connect signaling", ErrChannel, ev.err))
		}
	case signalEvent:
		s.onSignal(ev.ev)
	case roleResult:
		s.onRole(ev)
	case descriptionResult:
		s.onDescription(ev)
	case localCandidate:
		s.onLocalCandidate(ev.c)
	case transportState:
		s.onTransportState(ev.state)
	case remoteTrack:
		s.onRemoteTrack(ev.track)
	case controlOpened:
		s.controlOpen = true
		s.sendTrackState()
	case controlMessage:
		s.onControlMessage(ev.data)
	case toggleRequest:
		on, err := s.onToggle(ev.kind)
		ev.reply <- toggleReply{enabled: on, err: err}
	case endRequest:
		s.teardown(nil)
	}
}

func (s *Session) onMedia(ev mediaResult) {
	if ev.err != nil {
		s.fail(newError("acquire media", ErrMedia, ev.err))
		return
	}

	s.stream = ev.stream
	s.updateLocal()
	s.transition(StateAwaitingRole, nil)
	s.coord.MediaReady()
}

func (s *Session) onSignal(ev signaling.Event) {
	s.log.Debug("signaling event", "kind", ev.Kind.String(), "state", s.state.String())

	switch ev.Kind {
	case signaling.EventInitiateCall:
		s.assignRole(RoleInitiator)
	case signaling.EventPeerJoined:
		s.assignRole(RoleResponder)
	case signaling.EventWaitingForPeer:
		s.notify(Notification{Kind: NotifyWaitingForPeer})
	case signaling.EventRoomFull:
		if s.state < StateConnected {
			s.fail(newError("join room", ErrRoomFull, nil))
		}
	case signaling.EventOffer:
		s.onOffer(ev.SDP)
	case signaling.EventAnswer:
		s.onAnswer(ev.SDP)
	case signaling.EventICECandidate:
		s.onRemoteCandidate(fromPayload(ev.Candidate))
	case signaling.EventPeerDisconnected:
		s.peerLost(ErrPeerLost, "peer disconnected")
	case signaling.EventDisconnected:
		s.peerLost(ErrChannel, "relay connection lost")
	case signaling.EventError:
		if s.state < StateNegotiating {
			s.fail(newError("join room", ErrChannel, ev.Err))
			return
		}
		s.log.Warn("relay reported an error", "err", ev.Err)
	}
}

func (s *Session) assignRole(r Role) {
	if err := s.coord.RoleAssigned(r); err != nil {
		s.log.Warn("ignoring role assignment", "role", r.String(), "current", s.coord.Role().String(), "err", err)
		return
	}
	if s.role == RoleUnassigned {
		s.role = r
		s.pub.update(func(snap *Snapshot) { snap.Role = r })
	}
}

func (s *Session) onRole(ev roleResult) {
	if ev.err != nil {
		if errors.Is(ev.err, ErrMediaTimeout) {
			s.fail(newError("await media", ErrMediaTimeout, nil))
		}
		return
	}
	if s.state != StateAwaitingRole {
		return
	}
	s.startNegotiation(ev.role)
}

func (s *Session) startNegotiation(role Role) {
	s.role = role
	s.transition(StateNegotiating, nil)

	t, err := s.deps.Peers.NewTransport(peer.Options{
		Initiator: role == RoleInitiator,
		Handlers:  s.transportHandlers(),
	})
	if err != nil {
		s.fail(newError("create peer connection", ErrNegotiation, err))
		return
	}
	s.transport = t

	for _, track := range s.stream.Tracks() {
		if err := t.AddTrack(track); err != nil {
			s.fail(newError("add local track", ErrNegotiation, err))
			return
		}
	}

	if role == RoleInitiator {
		s.offerSent = true
		go s.createDescription(t, peer.SDPTypeOffer)
		return
	}
	if s.heldOffer != "" {
		sdp := s.heldOffer
		s.heldOffer = ""
		s.onOffer(sdp)
	}
}

func (s *Session) transportHandlers() peer.Handlers {
	return peer.Handlers{
		OnLocalCandidate:  func(c peer.Candidate) { s.post(localCandidate{c: c}) },
		OnConnectionState: func(st peer.ConnectionState) { s.post(transportState{state: st}) },
		OnRemoteTrack:     func(rt peer.RemoteTrack) { s.post(remoteTrack{track: rt}) },
		OnControlOpen:     func() { s.post(controlOpened{}) },
		OnControlMessage:  func(b []byte) { s.post(controlMessage{data: b}) },
	}
}

// createDescription runs off the loop; its result is dropped if the session
// has moved on by the time it arrives.
func (s *Session) createDescription(t peer.Transport, typ peer.SDPType) {
	var (
		desc peer.Description
		err  error
	)
	if typ == peer.SDPTypeOffer {
		desc, err = t.CreateOffer(s.ctx)
	} else {
		desc, err = t.CreateAnswer(s.ctx)
	}
	s.post(descriptionResult{transport: t, desc: desc, err: err})
}

func (s *Session) onDescription(ev descriptionResult) {
	if s.state != StateNegotiating || ev.transport != s.transport {
		s.log.Debug("discarding stale description")
		return
	}
	if ev.err != nil {
		s.fail(newError("create description", ErrNegotiation, ev.err))
		return
	}

	kind := signaling.EventOffer
	if ev.desc.Type == peer.SDPTypeAnswer {
		kind = signaling.EventAnswer
	}
	if err := s.channel.Send(signaling.Event{Kind: kind, SDP: ev.desc.SDP}); err != nil {
		s.fail(newError("send "+string(ev.desc.Type), ErrChannel, err))
	}
}

func (s *Session) onOffer(sdp string) {
	switch {
	case s.state < StateNegotiating:
		// Held until negotiation starts.
		s.heldOffer = sdp
	case s.state == StateNegotiating && s.role == RoleResponder && !s.remoteSet:
		if !s.applyRemote(peer.Description{Type: peer.SDPTypeOffer, SDP: sdp}) {
			return
		}
		go s.createDescription(s.transport, peer.SDPTypeAnswer)
	default:
		s.log.Warn("ignoring unexpected offer", "state", s.state.String(), "role", s.role.String())
	}
}

func (s *Session) onAnswer(sdp string) {
	if s.state != StateNegotiating || s.role != RoleInitiator || !s.offerSent || s.remoteSet {
		s.log.Warn("ignoring unexpected answer", "state", s.state.String(), "role", s.role.String())
		return
	}
	s.applyRemote(peer.Description{Type: peer.SDPTypeAnswer, SDP: sdp})
}

// applyRemote sets the remote description and flushes buffered candidates.
func (s *Session) applyRemote(d peer.Description) bool {
	if err := s.transport.SetRemoteDescription(d); err != nil {
		s.fail(newError("apply remote "+string(d.Type), ErrNegotiation, err))
		return false
	}
	s.remoteSet = true

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.transport.AddICECandidate(c); err != nil {
			s.fail(newError("apply remote candidate", ErrNegotiation, err))
			return false
		}
	}
	if len(pending) > 0 {
		s.log.Debug("flushed buffered candidates", "count", len(pending))
	}
	return true
}

func (s *Session) onRemoteCandidate(c peer.Candidate) {
	if s.transport == nil || !s.remoteSet {
		s.pending = append(s.pending, c)
		return
	}
	if err := s.transport.AddICECandidate(c); err != nil {
		s.fail(newError("apply remote candidate", ErrNegotiation, err))
	}
}

func (s *Session) onLocalCandidate(c peer.Candidate) {
	if s.state.Terminal() {
		return
	}
	payload := toPayload(c)
	if err := s.channel.Send(signaling.Event{Kind: signaling.EventICECandidate, Candidate: &payload}); err != nil {
		s.log.Debug("could not send local candidate", "err", err)
	}
}

func (s *Session) onTransportState(st peer.ConnectionState) {
	s.log.Debug("transport state", "transport", st.String(), "state", s.state.String())

	switch st {
	case peer.StateConnected:
		if s.state == StateNegotiating {
			s.transition(StateConnected, nil)
		}
	case peer.StateDisconnected, peer.StateFailed:
		switch s.state {
		case StateConnected:
			s.transition(StateDisconnected, nil)
		case StateNegotiating:
			if st == peer.StateFailed {
				s.fail(newError("connect peer", ErrNegotiation, errors.New("ice failed")))
			}
		}
	}
}

// peerLost handles the other side going away. A connected call becomes
// Disconnected; before that the attempt has failed.
func (s *Session) peerLost(kind error, details string) {
	switch s.state {
	case StateConnected:
		s.transition(StateDisconnected, nil)
	case StateDisconnected:
	default:
		err := newError("await peer", kind, nil)
		err.Details = details
		s.fail(err)
	}
}

func (s *Session) onRemoteTrack(rt peer.RemoteTrack) {
	if s.state != StateNegotiating && s.state != StateConnected {
		return
	}
	s.pub.update(func(snap *Snapshot) { snap.RemoteTracks = append(snap.RemoteTracks, rt) })
	s.notify(Notification{Kind: NotifyRemoteStream})
}

func (s *Session) onControlMessage(data []byte) {
	msg, err := decodeControl(data)
	if err != nil {
		s.log.Debug("bad control message", "err", err)
		return
	}
	switch msg.Type {
	case ControlTrackState:
		var ts TrackState
		if err := msg.DecodePayload(&ts); err != nil {
			s.log.Debug("bad track state", "err", err)
			return
		}
		s.pub.update(func(snap *Snapshot) { snap.RemoteState = &ts })
		s.notify(Notification{Kind: NotifyRemoteTrackState})
	default:
		s.log.Debug("unknown control message", "type", msg.Type)
	}
}

func (s *Session) onToggle(kind media.Kind) (bool, error) {
	if s.stream == nil {
		return false, ErrMediaNotReady
	}

	var on bool
	if kind == media.KindVideo {
		if s.stream.VideoTrack() == nil {
			return false, ErrNoVideoTrack
		}
		on = !s.stream.VideoEnabled()
		s.stream.SetVideoEnabled(on)
	} else {
		on = !s.stream.AudioEnabled()
		s.stream.SetAudioEnabled(on)
	}

	s.updateLocal()
	s.notify(Notification{Kind: NotifyLocalTracks})
	s.sendTrackState()
	return on, nil
}

func (s *Session) sendTrackState() {
	if !s.controlOpen || s.transport == nil || s.stream == nil {
		return
	}
	data, err := encodeControl(ControlTrackState, TrackState{
		Participant: s.opts.Participant,
		Client:      version.ClientType,
		Audio:       s.stream.AudioEnabled(),
		Video:       s.stream.VideoEnabled(),
	})
	if err != nil {
		s.log.Debug("encode track state", "err", err)
		return
	}
	if err := s.transport.SendControl(data); err != nil {
		s.log.Debug("send track state", "err", err)
	}
}

func (s *Session) updateLocal() {
	tracks := len(s.stream.Tracks())
	audio, video := s.stream.AudioEnabled(), s.stream.VideoEnabled()
	s.pub.update(func(snap *Snapshot) {
		snap.LocalTracks = tracks
		snap.AudioEnabled = audio
		snap.VideoEnabled = video
	})
}

// transition moves to state to and publishes the change. Illegal moves are
// logged and ignored.
func (s *Session) transition(to State, cause error) bool {
	from := s.state
	if !canTransition(from, to) {
		s.log.Debug("ignoring transition", "from", from.String(), "to", to.String())
		return false
	}
	s.state = to
	metrics.RecordTransition(from.String(), to.String())

	now := s.deps.Clock.Now()
	role := s.role
	s.pub.update(func(snap *Snapshot) {
		snap.State = to
		snap.Role = role
		snap.History = append(snap.History, to)
		switch to {
		case StateConnected:
			snap.ConnectedAt = now
		case StateDisconnected:
			snap.RemoteTracks = nil
		case StateClosed, StateFailed:
			snap.Err = cause
			snap.RemoteTracks = nil
			snap.EndedAt = now
		}
	})

	if cause != nil {
		s.log.Info("call session failed", "from", from.String(), "err", cause)
	} else {
		s.log.Info("call session state", "from", from.String(), "to", to.String(), "role", role.String())
	}

	s.notify(Notification{Kind: NotifyState, Change: StateChange{From: from, To: to, Role: role, Err: cause}})
	if to == StateDisconnected {
		s.notify(Notification{Kind: NotifyRemoteStream})
		// A disconnected call is never renegotiated, so it must not stay in
		// the room where the relay would pair it with the next joiner.
		s.channel.Disconnect()
	}
	return true
}

// fail tears the session down and leaves it Failed with err attached.
func (s *Session) fail(err error) {
	s.teardown(err)
}

func (s *Session) Snapshot() Snapshot {
	s.pub.mu.Lock()
	defer s.pub.mu.Unlock()
	return s.pub.snap.clone()
}

func (s *Session) toggle(kind media.Kind) (bool, error) {
	reply := make(chan toggleReply, 1)
	if !s.post(toggleRequest{kind: kind, reply: reply}) {
		return false, ErrSessionClosed
	}
	select {
	case r := <-reply:
		return r.enabled, r.err
	case <-s.done:
		return false, ErrSessionClosed
	}
}

func (s *Session) end() {
	s.post(endRequest{})
	<-s.done
}

func (s *Session) subscribe() (<-chan Notification, func()) {
	p := &s.pub
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}
}

// subscriberBuffer is how many notifications a subscriber may lag behind.
const subscriberBuffer = 32

func (s *Session) notify(n Notification) {
	p := &s.pub
	p.mu.Lock()
	defer p.mu.Unlock()

	n.Snapshot = p.snap.clone()
	for _, ch := range p.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (p *published) update(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snap)
}

func (p *published) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, ch := range p.subs {
		close(ch)
		delete(p.subs, id)
	}
}

func toPayload(c peer.Candidate) signaling.CandidatePayload {
	return signaling.CandidatePayload{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromPayload(p *signaling.CandidatePayload) peer.Candidate {
	if p == nil {
		return peer.Candidate{}
	}
	return peer.Candidate{
		Candidate:        p.Candidate,
		SDPMid:           p.SDPMid,
		SDPMLineIndex:    p.SDPMLineIndex,
		UsernameFragment: p.UsernameFragment,
	}
}
