package media

import (
	"errors"
	"fmt"
)

// Causes reported by providers.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDeviceBusy        = errors.New("device busy")
)

// ErrorKind classifies a MediaError.
type ErrorKind int

const (
	AcquisitionFailed ErrorKind = iota + 1
	MissingTrack
	UnexpectedTrack
)

func (k ErrorKind) String() string {
	switch k {
	case AcquisitionFailed:
		return "acquisition failed"
	case MissingTrack:
		return "missing track"
	case UnexpectedTrack:
		return "unexpected track"
	default:
		return "unknown"
	}
}

// MediaError is returned by Source.Acquire.
type MediaError struct {
	Kind  ErrorKind
	Track Kind // set for MissingTrack and UnexpectedTrack
	Err   error
}

func (e *MediaError) Error() string {
	msg := "media: " + e.Kind.String()
	if e.Track != "" {
		msg += fmt.Sprintf(" (%s)", e.Track)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a MediaError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var me *MediaError
	return errors.As(err, &me) && me.Kind == k
}
