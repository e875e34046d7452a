package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

func TestSession_InitiatorConnects(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Video)

	sig, p := connectAsInitiator(t, h, handle)

	snap := handle.Snapshot()
	assert.Equal(t, []State{StateIdle, StateAcquiringMedia, StateAwaitingRole, StateNegotiating, StateConnected}, snap.History)
	assert.Equal(t, RoleInitiator, snap.Role)
	assert.Equal(t, 2, snap.LocalTracks)
	assert.False(t, snap.ConnectedAt.IsZero())
	assert.True(t, p.opts.Initiator)
	assert.Equal(t, 2, p.trackCount())

	join := sig.sentOfType(signaling.MessageTypeJoin)
	require.Len(t, join, 1)
	assert.Equal(t, "amber-falcon-river-stone", join[0].RoomID)

	var offer signaling.SDPPayload
	require.NoError(t, sig.sentOfType(signaling.MessageTypeOffer)[0].DecodePayload(&offer))
	assert.Equal(t, "offer-sdp", offer.SDP)
	assert.Empty(t, sig.sentOfType(signaling.MessageTypeAnswer))
}

func TestSession_LocalCandidatesAreSent(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	sig, p := connectAsInitiator(t, h, handle)

	mid := "0"
	p.opts.Handlers.OnLocalCandidate(peer.Candidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid})

	require.Eventually(t, func() bool { return len(sig.sentOfType(signaling.MessageTypeICECandidate)) == 1 },
		waitFor, 5*time.Millisecond)
	var c signaling.CandidatePayload
	require.NoError(t, sig.sentOfType(signaling.MessageTypeICECandidate)[0].DecodePayload(&c))
	assert.Equal(t, "candidate:1 1 udp 1 10.0.0.1 5000 typ host", c.Candidate)
	require.NotNil(t, c.SDPMid)
	assert.Equal(t, "0", *c.SDPMid)
}

func TestSession_ResponderAppliesEarlyCandidatesAfterOffer(t *testing.T) {
	h := newHarness(t)
	h.media.gate = make(chan struct{})
	handle := h.start(media.Audio)
	sig := h.signal()

	// Everything arrives while media is still being acquired.
	sig.push(t, signaling.MessageTypePeerJoined, nil)
	sig.push(t, signaling.MessageTypeICECandidate, signaling.CandidatePayload{Candidate: "cand-a"})
	sig.push(t, signaling.MessageTypeOffer, signaling.SDPPayload{Type: "offer", SDP: "offer-sdp"})
	sig.push(t, signaling.MessageTypeICECandidate, signaling.CandidatePayload{Candidate: "cand-b"})

	require.Eventually(t, func() bool { return handle.Snapshot().Role == RoleResponder }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateAcquiringMedia, handle.State())
	assert.Zero(t, h.peers.count())

	close(h.media.gate)
	waitState(t, handle, StateNegotiating)

	require.Eventually(t, func() bool { return len(sig.sentOfType(signaling.MessageTypeAnswer)) == 1 },
		waitFor, 5*time.Millisecond, "answer never sent")

	p := h.peers.last(t)
	assert.False(t, p.opts.Initiator)
	assert.Equal(t, []string{"remote:offer", "candidate:cand-a", "candidate:cand-b", "create:answer"}, p.callLog())
	assert.Empty(t, sig.sentOfType(signaling.MessageTypeOffer))

	p.opts.Handlers.OnConnectionState(peer.StateConnected)
	waitState(t, handle, StateConnected)
}

func TestSession_CandidateAfterRemoteDescriptionAppliedDirectly(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	sig, p := connectAsInitiator(t, h, handle)

	sig.push(t, signaling.MessageTypeICECandidate, signaling.CandidatePayload{Candidate: "late"})
	require.Eventually(t, func() bool { return contains(p.callLog(), "candidate:late") }, waitFor, 5*time.Millisecond)
}

func TestSession_RoomFullNeverNegotiates(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Video)
	sig := h.signal()

	sig.push(t, signaling.MessageTypeRoomFull, nil)
	waitDone(t, handle)

	snap := handle.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.ErrorIs(t, snap.Err, ErrRoomFull)
	assert.NotContains(t, snap.History, StateNegotiating)
	assert.Zero(t, h.peers.count())
	assert.Equal(t, 1, sig.closeCount())
	require.Eventually(t, h.media.allStopped, waitFor, 5*time.Millisecond)
}

func TestSession_MediaDenied(t *testing.T) {
	h := newHarness(t)
	h.media.err = media.ErrPermissionDenied
	handle := h.start(media.Video)
	waitDone(t, handle)

	snap := handle.Snapshot()
	assert.Equal(t, []State{StateIdle, StateAcquiringMedia, StateFailed}, snap.History)
	assert.ErrorIs(t, snap.Err, ErrMedia)
	assert.ErrorIs(t, snap.Err, media.ErrPermissionDenied)
	assert.True(t, media.IsKind(snap.Err, media.AcquisitionFailed))

	var se *SessionError
	require.ErrorAs(t, snap.Err, &se)
	assert.Equal(t, "acquire media", se.Op)
	assert.GreaterOrEqual(t, h.signal().closeCount(), 1)
}

func TestSession_MediaTimeout(t *testing.T) {
	h := newHarness(t)
	h.media.gate = make(chan struct{})
	handle := h.start(media.Audio)
	sig := h.signal()

	sig.push(t, signaling.MessageTypeInitiateCall, nil)
	require.Eventually(t, func() bool { return handle.Snapshot().Role == RoleInitiator }, waitFor, 5*time.Millisecond)

	h.clock.Add(9 * time.Second)
	assert.Equal(t, StateAcquiringMedia, handle.State())

	h.clock.Add(time.Second)
	waitDone(t, handle)

	snap := handle.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.ErrorIs(t, snap.Err, ErrMediaTimeout)
	assert.Zero(t, h.peers.count())
}

func TestSession_MediaBeforeTimeoutProceeds(t *testing.T) {
	h := newHarness(t)
	h.media.gate = make(chan struct{})
	handle := h.start(media.Audio)
	sig := h.signal()

	sig.push(t, signaling.MessageTypeInitiateCall, nil)
	require.Eventually(t, func() bool { return handle.Snapshot().Role == RoleInitiator }, waitFor, 5*time.Millisecond)

	close(h.media.gate)
	waitState(t, handle, StateNegotiating)

	h.clock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateNegotiating, handle.State())
}

func TestSession_PeerLeavesAfterConnect(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Video)
	sig, p := connectAsInitiator(t, h, handle)

	p.opts.Handlers.OnRemoteTrack(peer.RemoteTrack{ID: "r-audio", StreamID: "s", Kind: media.KindAudio})
	p.opts.Handlers.OnRemoteTrack(peer.RemoteTrack{ID: "r-video", StreamID: "s", Kind: media.KindVideo})
	require.Eventually(t, func() bool { return len(handle.Snapshot().RemoteTracks) == 2 }, waitFor, 5*time.Millisecond)

	sig.push(t, signaling.MessageTypePeerDisconnected, nil)
	waitState(t, handle, StateDisconnected)
	assert.Empty(t, handle.Snapshot().RemoteTracks)

	// The room slot is given back so a later joiner is not paired with a
	// call that can no longer negotiate. Media stays up until End.
	require.Eventually(t, func() bool { return sig.closeCount() == 1 }, waitFor, 5*time.Millisecond)
	assert.False(t, h.media.allStopped())
	assert.Zero(t, p.closeCount())

	// Transport failure after the peer left changes nothing.
	p.opts.Handlers.OnConnectionState(peer.StateFailed)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateDisconnected, handle.State())

	handle.End()
	snap := handle.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.NoError(t, snap.Err)
	assert.Equal(t, []State{StateIdle, StateAcquiringMedia, StateAwaitingRole, StateNegotiating, StateConnected, StateDisconnected, StateClosed}, snap.History)
}

func TestSession_TransportDropWhileConnected(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	_, p := connectAsInitiator(t, h, handle)

	p.opts.Handlers.OnConnectionState(peer.StateDisconnected)
	waitState(t, handle, StateDisconnected)
	require.Eventually(t, func() bool { return h.signal().closeCount() == 1 }, waitFor, 5*time.Millisecond)

	// No way back to Connected.
	p.opts.Handlers.OnConnectionState(peer.StateConnected)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateDisconnected, handle.State())

	handle.End()
	assert.Equal(t, StateClosed, handle.State())
	assert.Equal(t, 1, h.signal().closeCount())
}

func TestSession_RelayDrop(t *testing.T) {
	t.Run("before connect fails", func(t *testing.T) {
		h := newHarness(t)
		handle := h.start(media.Audio)
		sig := h.signal()
		sig.push(t, signaling.MessageTypeWaitingForPeer, nil)
		sig.drop()

		waitDone(t, handle)
		assert.Equal(t, StateFailed, handle.State())
		assert.ErrorIs(t, handle.Err(), ErrChannel)
	})

	t.Run("after connect disconnects", func(t *testing.T) {
		h := newHarness(t)
		handle := h.start(media.Audio)
		sig, _ := connectAsInitiator(t, h, handle)
		sig.drop()

		waitState(t, handle, StateDisconnected)
	})
}

func TestSession_PeerLeavesBeforeConnect(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	sig := h.signal()
	sig.push(t, signaling.MessageTypeInitiateCall, nil)
	waitState(t, handle, StateNegotiating)

	sig.push(t, signaling.MessageTypePeerDisconnected, nil)
	waitDone(t, handle)
	assert.Equal(t, StateFailed, handle.State())
	assert.ErrorIs(t, handle.Err(), ErrPeerLost)
}

func TestSession_NegotiationFailures(t *testing.T) {
	t.Run("bad remote offer", func(t *testing.T) {
		h := newHarness(t)
		h.peers.remoteErr = errors.New("malformed sdp")
		handle := h.start(media.Audio)
		sig := h.signal()
		sig.push(t, signaling.MessageTypePeerJoined, nil)
		sig.push(t, signaling.MessageTypeOffer, signaling.SDPPayload{Type: "offer", SDP: "garbage"})

		waitDone(t, handle)
		assert.Equal(t, StateFailed, handle.State())
		assert.ErrorIs(t, handle.Err(), ErrNegotiation)
		assert.Empty(t, sig.sentOfType(signaling.MessageTypeAnswer))
	})

	t.Run("ice failed while negotiating", func(t *testing.T) {
		h := newHarness(t)
		handle := h.start(media.Audio)
		h.signal().push(t, signaling.MessageTypeInitiateCall, nil)
		waitState(t, handle, StateNegotiating)

		h.peers.last(t).opts.Handlers.OnConnectionState(peer.StateFailed)
		waitDone(t, handle)
		assert.ErrorIs(t, handle.Err(), ErrNegotiation)
	})
}

func TestSession_ChannelErrors(t *testing.T) {
	t.Run("connect failure", func(t *testing.T) {
		h := newHarness(t)
		h.connectErr = errors.New("dial refused")
		handle := h.start(media.Audio)

		waitDone(t, handle)
		assert.ErrorIs(t, handle.Err(), ErrChannel)
		require.Eventually(t, h.media.allStopped, waitFor, 5*time.Millisecond)
	})

	t.Run("relay error before negotiation", func(t *testing.T) {
		h := newHarness(t)
		handle := h.start(media.Audio)
		h.signal().push(t, signaling.MessageTypeError, signaling.ErrorPayload{Error: "Already in a room"})

		waitDone(t, handle)
		assert.ErrorIs(t, handle.Err(), ErrChannel)
		assert.ErrorIs(t, handle.Err(), signaling.ErrRelay)
	})
}

func TestSession_StalledSubscriberNeverBlocks(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	waitState(t, handle, StateAwaitingRole)

	notes, unsubscribe := handle.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+8; i++ {
		_, err := handle.ToggleAudio()
		require.NoError(t, err)
	}
	handle.End()
	waitDone(t, handle)

	// The Closed change did not fit in the buffer, but History has it.
	count, sawClosed := 0, false
	for n := range notes {
		count++
		if n.Kind == NotifyState && n.Change.To == StateClosed {
			sawClosed = true
		}
	}
	assert.Equal(t, subscriberBuffer, count)
	assert.False(t, sawClosed)
	assert.Equal(t, []State{StateIdle, StateAcquiringMedia, StateAwaitingRole, StateClosed}, handle.Snapshot().History)
}

func TestSession_Toggles(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Video)
	waitState(t, handle, StateAwaitingRole)

	on, err := handle.ToggleAudio()
	require.NoError(t, err)
	assert.False(t, on)

	snap := handle.Snapshot()
	assert.False(t, snap.AudioEnabled)
	assert.True(t, snap.VideoEnabled)
	assert.Equal(t, 2, snap.LocalTracks)

	on, err = handle.ToggleVideo()
	require.NoError(t, err)
	assert.False(t, on)

	on, err = handle.ToggleAudio()
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, 2, handle.Snapshot().LocalTracks)

	handle.End()
	_, err = handle.ToggleAudio()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_ToggleErrors(t *testing.T) {
	t.Run("audio only", func(t *testing.T) {
		h := newHarness(t)
		handle := h.start(media.Audio)
		waitState(t, handle, StateAwaitingRole)

		_, err := handle.ToggleVideo()
		assert.ErrorIs(t, err, ErrNoVideoTrack)
		assert.Equal(t, 1, handle.Snapshot().LocalTracks)
	})

	t.Run("before media", func(t *testing.T) {
		h := newHarness(t)
		h.media.gate = make(chan struct{})
		handle := h.start(media.Audio)
		waitState(t, handle, StateAcquiringMedia)

		_, err := handle.ToggleAudio()
		assert.ErrorIs(t, err, ErrMediaNotReady)
	})
}

func TestSession_TrackStateOverControlChannel(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Video)
	_, p := connectAsInitiator(t, h, handle)

	p.opts.Handlers.OnControlOpen()
	require.Eventually(t, func() bool { return len(p.controlMessages()) == 1 }, waitFor, 5*time.Millisecond)

	_, err := handle.ToggleVideo()
	require.NoError(t, err)
	msgs := p.controlMessages()
	require.Len(t, msgs, 2)

	msg, err := decodeControl(msgs[1])
	require.NoError(t, err)
	assert.Equal(t, ControlTrackState, msg.Type)
	var ts TrackState
	require.NoError(t, msg.DecodePayload(&ts))
	assert.Equal(t, TrackState{Participant: "alice", Client: "cli", Audio: true, Video: false}, ts)

	remote, err := encodeControl(ControlTrackState, TrackState{Participant: "bob", Client: "web", Audio: false, Video: true})
	require.NoError(t, err)
	p.opts.Handlers.OnControlMessage(remote)
	p.opts.Handlers.OnControlMessage([]byte{0xc1})

	require.Eventually(t, func() bool { return handle.Snapshot().RemoteState != nil }, waitFor, 5*time.Millisecond)
	rs := handle.Snapshot().RemoteState
	assert.Equal(t, "bob", rs.Participant)
	assert.False(t, rs.Audio)
	assert.Equal(t, StateConnected, handle.State())
}

func TestSession_EndReleasesBeforeClosedIsObserved(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Video)
	sig, p := connectAsInitiator(t, h, handle)

	notes, unsubscribe := handle.Subscribe()
	defer unsubscribe()

	go handle.End()

	seen := false
	for n := range notes {
		if n.Kind != NotifyState || n.Change.To != StateClosed {
			continue
		}
		seen = true
		assert.Equal(t, StateConnected, n.Change.From)
		assert.True(t, h.media.allStopped(), "local tracks still live")
		assert.Equal(t, 1, p.closeCount())
		assert.GreaterOrEqual(t, sig.closeCount(), 1)
		assert.Empty(t, n.Snapshot.RemoteTracks)
		break
	}
	assert.True(t, seen, "closed state never published")
	waitDone(t, handle)
}

func TestSession_EndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	_, p := connectAsInitiator(t, h, handle)

	handle.End()
	handle.End()

	assert.Equal(t, StateClosed, handle.State())
	assert.Equal(t, 1, p.closeCount())
	assert.True(t, h.media.allStopped())
	assert.Equal(t, 1, h.media.openedCount())

	notes, _ := handle.Subscribe()
	_, open := <-notes
	assert.False(t, open, "subscription to a finished session is closed")
}

func TestSession_EndWhileAcquiring(t *testing.T) {
	h := newHarness(t)
	h.media.gate = make(chan struct{})
	handle := h.start(media.Audio)
	waitState(t, handle, StateAcquiringMedia)

	handle.End()
	assert.Equal(t, StateClosed, handle.State())
	assert.NoError(t, handle.Err())

	close(h.media.gate)
	assert.Zero(t, h.media.openedCount())
}

func TestSession_ContextCancelCloses(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	handle, err := h.mgr.StartSession(ctx, Options{RoomID: "room", MediaType: media.Audio})
	require.NoError(t, err)
	waitState(t, handle, StateAwaitingRole)

	cancel()
	waitDone(t, handle)
	assert.Equal(t, StateClosed, handle.State())
	assert.True(t, h.media.allStopped())
}

func TestSession_WaitingForPeerNotification(t *testing.T) {
	h := newHarness(t)
	handle := h.start(media.Audio)
	notes, unsubscribe := handle.Subscribe()
	defer unsubscribe()

	h.signal().push(t, signaling.MessageTypeWaitingForPeer, nil)

	deadline := time.After(waitFor)
	for {
		select {
		case n := <-notes:
			if n.Kind == NotifyWaitingForPeer {
				return
			}
		case <-deadline:
			t.Fatal("no waiting notification")
		}
	}
}

func TestManager_SingleActiveSession(t *testing.T) {
	h := newHarness(t)
	first := h.start(media.Audio)
	require.NotNil(t, h.mgr.Active())
	assert.Equal(t, first.ID(), h.mgr.Active().ID())

	_, err := h.mgr.StartSession(context.Background(), Options{RoomID: "other", MediaType: media.Audio})
	assert.ErrorIs(t, err, ErrSessionActive)

	first.End()
	assert.Nil(t, h.mgr.Active())

	second := h.start(media.Video)
	assert.NotEqual(t, first.ID(), second.ID())

	h.mgr.Close()
	waitDone(t, second)
	_, err = h.mgr.StartSession(context.Background(), Options{RoomID: "again", MediaType: media.Audio})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestManager_RejectsBadOptions(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.StartSession(context.Background(), Options{MediaType: media.Audio})
	assert.Error(t, err)

	_, err = h.mgr.StartSession(context.Background(), Options{RoomID: "room", MediaType: media.Type(9)})
	assert.Error(t, err)

	_, err = NewManager(Deps{}).StartSession(context.Background(), Options{RoomID: "room", MediaType: media.Audio})
	assert.Error(t, err)
}
