// Package peer adapts a WebRTC peer connection to the narrow interface the
// call session drives.
package peer

import (
	"context"
	"errors"

	"github.com/BioHazard786/Warpcall/internal/media"
)

// ControlLabel names the data channel that carries call control messages.
const ControlLabel = "control"

var (
	ErrUnsupportedTrack = errors.New("track cannot be attached to a peer connection")
	ErrControlNotReady  = errors.New("control channel not open")
	ErrClosed           = errors.New("peer transport closed")
)

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// Description is a session description.
type Description struct {
	Type SDPType
	SDP  string
}

// Candidate is a trickled ICE candidate.
type Candidate struct {
	Candidate        string
	SDPMid           *string
	SDPMLineIndex    *uint16
	UsernameFragment *string
}

// ConnectionState is the aggregate connection state of a transport.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RemoteTrack describes a track received from the other side.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     media.Kind
}

// Handlers receive transport callbacks. They run on transport goroutines and
// must not block. Any of them may be nil.
type Handlers struct {
	OnLocalCandidate  func(Candidate)
	OnConnectionState func(ConnectionState)
	OnRemoteTrack     func(RemoteTrack)
	OnControlOpen     func()
	OnControlMessage  func([]byte)
}

// Transport is one peer connection.
type Transport interface {
	AddTrack(t media.Track) error
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context) (Description, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer(ctx context.Context) (Description, error)
	SetRemoteDescription(d Description) error
	AddICECandidate(c Candidate) error
	SendControl(data []byte) error
	Close() error
}

// Options configure a new Transport. The initiator opens the control channel
// so it is part of the first offer.
type Options struct {
	Initiator bool
	Handlers  Handlers
}

// Factory builds transports.
type Factory interface {
	NewTransport(opts Options) (Transport, error)
}
