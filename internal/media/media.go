// Package media acquires and controls the local audio/video tracks of a call.
package media

import (
	"context"
	"fmt"
	"strings"
)

// Type selects which devices a call needs.
type Type int

const (
	Audio Type = iota + 1
	Video
)

func (t Type) String() string {
	switch t {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return fmt.Sprintf("media(%d)", int(t))
	}
}

// ParseType accepts "audio" or "video".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio":
		return Audio, nil
	case "video":
		return Video, nil
	}
	return 0, fmt.Errorf("unknown media type %q", s)
}

// Kind is the kind of a single track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one local capture track. Disabling a track keeps it alive but
// stops it from carrying signal.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	// Stop ends the track for good. It may be called more than once.
	Stop()
}

// Provider opens capture tracks for the requested constraints. Returned
// tracks belong to the caller.
type Provider interface {
	Open(ctx context.Context, c Constraints) ([]Track, error)
}

// Range is an advisory numeric hint.
type Range struct {
	Min, Ideal, Max int
}

type VideoHints struct {
	Width     Range
	Height    Range
	FrameRate Range
}

type AudioHints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Constraints describe what to capture. A nil field means the device is not
// requested. Providers may substitute supported values for any hint.
type Constraints struct {
	Audio *AudioHints
	Video *VideoHints
}

// DefaultConstraints returns the capture hints used for a call of type t.
func DefaultConstraints(t Type) Constraints {
	c := Constraints{
		Audio: &AudioHints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
	if t == Video {
		c.Video = &VideoHints{
			Width:     Range{Min: 320, Ideal: 640, Max: 1280},
			Height:    Range{Min: 240, Ideal: 480, Max: 720},
			FrameRate: Range{Ideal: 30, Max: 60},
		}
	}
	return c
}
