// Package call runs two-party media call sessions: it acquires local media,
// joins a signaling room, negotiates a peer connection and tears everything
// down again however the call ends.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// DefaultMediaTimeout bounds how long a role assignment waits for media.
const DefaultMediaTimeout = 10 * time.Second

// Deps are the collaborators a session is built from.
type Deps struct {
	Media media.Provider
	// Signaling returns a fresh, unconnected transport for one session.
	Signaling func(roomID string) signaling.Transport
	Peers     peer.Factory

	Clock        clock.Clock
	MediaTimeout time.Duration
}

// Options describe one call.
type Options struct {
	RoomID    string
	MediaType media.Type
	// Participant is an opaque label for the local side, shown to the peer.
	Participant string
}

// Manager starts sessions and keeps at most one of them active.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	active *Session
	closed bool
}

func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.MediaTimeout <= 0 {
		deps.MediaTimeout = DefaultMediaTimeout
	}
	return &Manager{deps: deps}
}

// StartSession begins a new call attempt. Cancelling ctx disposes of the
// session the same way End does.
func (m *Manager) StartSession(ctx context.Context, opts Options) (*Handle, error) {
	if opts.RoomID == "" {
		return nil, errors.New("room id is required")
	}
	if opts.MediaType != media.Audio && opts.MediaType != media.Video {
		return nil, fmt.Errorf("invalid media type %v", opts.MediaType)
	}
	if m.deps.Media == nil || m.deps.Signaling == nil || m.deps.Peers == nil {
		return nil, errors.New("call manager is missing a dependency")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}
	if m.active != nil && !m.active.Snapshot().State.Terminal() {
		return nil, ErrSessionActive
	}

	s := newSession(ctx, uuid.NewString(), opts, m.deps)
	m.active = s
	metrics.SessionsStarted.Inc()
	slog.Info("starting call session", "session_id", s.id, "room_id", opts.RoomID, "media", opts.MediaType.String())

	go s.run()
	return &Handle{s: s}, nil
}

// Active returns the current non-terminal session, or nil.
func (m *Manager) Active() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.Snapshot().State.Terminal() {
		return nil
	}
	return &Handle{s: m.active}
}

// Close ends the active session and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	s := m.active
	m.mu.Unlock()

	if s != nil {
		s.end()
	}
}
