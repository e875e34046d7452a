package call

import (
	"time"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
)

// NotificationKind says what changed.
type NotificationKind int

const (
	NotifyState NotificationKind = iota + 1
	NotifyRemoteStream
	NotifyRemoteTrackState
	NotifyWaitingForPeer
	NotifyLocalTracks
)

// StateChange describes one transition.
type StateChange struct {
	From State
	To   State
	Role Role
	Err  error
}

// Notification is delivered to subscribers. Snapshot reflects the session
// right after the change.
type Notification struct {
	Kind     NotificationKind
	Change   StateChange
	Snapshot Snapshot
}

// Snapshot is a read-only copy of a session's observable state.
type Snapshot struct {
	ID          string
	RoomID      string
	MediaType   media.Type
	Participant string

	State   State
	Role    Role
	History []State
	Err     error

	LocalTracks  int
	AudioEnabled bool
	VideoEnabled bool

	// RemoteTracks is empty whenever the remote stream is gone.
	RemoteTracks []peer.RemoteTrack
	RemoteState  *TrackState

	StartedAt   time.Time
	ConnectedAt time.Time
	EndedAt     time.Time
}

func (s Snapshot) clone() Snapshot {
	s.History = append([]State(nil), s.History...)
	s.RemoteTracks = append([]peer.RemoteTrack(nil), s.RemoteTracks...)
	if s.RemoteState != nil {
		rs := *s.RemoteState
		s.RemoteState = &rs
	}
	return s
}

// Handle is the caller's view of one session.
type Handle struct {
	s *Session
}

func (h *Handle) ID() string { return h.s.id }

func (h *Handle) State() State { return h.s.Snapshot().State }

func (h *Handle) Snapshot() Snapshot { return h.s.Snapshot() }

// Subscribe returns a channel of notifications and a function that ends the
// subscription. The channel is closed when the session ends.
//
// A subscriber that falls subscriberBuffer notifications behind misses the
// newer ones rather than stalling the session, state changes included. A
// missed transition can be recovered from Snapshot().History, which records
// every transition in order.
func (h *Handle) Subscribe() (<-chan Notification, func()) {
	return h.s.subscribe()
}

// ToggleAudio flips the microphone and returns the new enabled state.
func (h *Handle) ToggleAudio() (bool, error) {
	return h.s.toggle(media.KindAudio)
}

// ToggleVideo flips the camera and returns the new enabled state.
func (h *Handle) ToggleVideo() (bool, error) {
	return h.s.toggle(media.KindVideo)
}

// End tears the session down and waits for it to finish. Calling End on a
// finished session does nothing.
func (h *Handle) End() {
	h.s.end()
}

// Done is closed after teardown, once the final state is observable.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Err returns the failure cause, or nil.
func (h *Handle) Err() error { return h.s.Snapshot().Err }
