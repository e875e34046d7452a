package call

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// Failure causes. A failed session's error matches exactly one of the first
// six with errors.Is.
var (
	ErrMedia        = errors.New("media error")
	ErrChannel      = errors.New("signaling channel error")
	ErrRoomFull     = signaling.ErrRoomFull
	ErrMediaTimeout = errors.New("media not ready in time")
	ErrNegotiation  = errors.New("negotiation failed")
	ErrPeerLost     = errors.New("peer lost")
)

// Caller errors.
var (
	ErrSessionActive = errors.New("a call session is already active")
	ErrSessionClosed = errors.New("call session closed")
	ErrRoleConflict  = errors.New("conflicting role assignment")
	ErrCancelled     = errors.New("cancelled")
	ErrNoVideoTrack  = errors.New("call has no video track")
	ErrMediaNotReady = errors.New("local media not acquired yet")
)

// SessionError is the cause attached to a failed session.
type SessionError struct {
	Op      string // "acquire media", "connect signaling", ...
	Kind    error  // one of the failure causes above
	Err     error  // underlying error, may be nil
	Details string
}

func (e *SessionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Details)
	}
	return b.String()
}

func (e *SessionError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op string, kind, err error) *SessionError {
	return &SessionError{Op: op, Kind: kind, Err: err}
}
