package call

import (
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// event is anything the session loop consumes.
type event interface{}

type mediaResult struct {
	stream *media.Stream
	err    error
}

type channelResult struct {
	err error
}

type signalEvent struct {
	ev signaling.Event
}

type roleResult struct {
	role Role
	err  error
}

type descriptionResult struct {
	transport peer.Transport
	desc      peer.Description
	err       error
}

type localCandidate struct {
	c peer.Candidate
}

type transportState struct {
	state peer.ConnectionState
}

type remoteTrack struct {
	track peer.RemoteTrack
}

type controlOpened struct{}

type controlMessage struct {
	data []byte
}

type toggleRequest struct {
	kind  media.Kind
	reply chan toggleReply
}

type toggleReply struct {
	enabled bool
	err     error
}

type endRequest struct{}
