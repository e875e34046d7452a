package media

import (
	"context"
	"log/slog"
	"sync"
)

// Source acquires validated streams from a Provider.
type Source struct {
	provider Provider
}

func NewSource(p Provider) *Source {
	return &Source{provider: p}
}

// Acquire requests the microphone, plus the camera when t is Video. The
// result holds exactly one audio track and, for Video, exactly one video
// track; anything else is released and reported as a MediaError.
func (s *Source) Acquire(ctx context.Context, t Type) (*Stream, error) {
	tracks, err := s.provider.Open(ctx, DefaultConstraints(t))
	if err != nil {
		stopAll(tracks)
		return nil, &MediaError{Kind: AcquisitionFailed, Err: err}
	}

	if err := validate(tracks, t); err != nil {
		stopAll(tracks)
		return nil, err
	}

	slog.Debug("media acquired", "type", t, "tracks", len(tracks))
	return &Stream{tracks: tracks}, nil
}

func validate(tracks []Track, t Type) error {
	counts := map[Kind]int{}
	for _, tr := range tracks {
		counts[tr.Kind()]++
	}

	want := map[Kind]int{KindAudio: 1}
	if t == Video {
		want[KindVideo] = 1
	}

	for _, kind := range []Kind{KindAudio, KindVideo} {
		switch have := counts[kind]; {
		case have < want[kind]:
			return &MediaError{Kind: MissingTrack, Track: kind}
		case have > want[kind]:
			return &MediaError{Kind: UnexpectedTrack, Track: kind}
		}
	}
	for kind := range counts {
		if kind != KindAudio && kind != KindVideo {
			return &MediaError{Kind: UnexpectedTrack, Track: kind}
		}
	}
	return nil
}

func stopAll(tracks []Track) {
	for _, tr := range tracks {
		if tr != nil {
			tr.Stop()
		}
	}
}

// Stream is an acquired set of local tracks.
type Stream struct {
	mu       sync.Mutex
	tracks   []Track
	released bool
}

// Tracks returns the stream's tracks. The count never changes after
// acquisition.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.tracks...)
}

func (s *Stream) track(kind Kind) Track {
	for _, tr := range s.tracks {
		if tr.Kind() == kind {
			return tr
		}
	}
	return nil
}

func (s *Stream) AudioTrack() Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track(KindAudio)
}

// VideoTrack returns nil for audio-only streams.
func (s *Stream) VideoTrack() Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track(KindVideo)
}

func (s *Stream) SetAudioEnabled(enabled bool) bool {
	return s.setEnabled(KindAudio, enabled)
}

func (s *Stream) SetVideoEnabled(enabled bool) bool {
	return s.setEnabled(KindVideo, enabled)
}

// setEnabled reports whether a track of that kind exists.
func (s *Stream) setEnabled(kind Kind, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.track(kind)
	if tr == nil {
		return false
	}
	if !s.released {
		tr.SetEnabled(enabled)
	}
	return true
}

func (s *Stream) AudioEnabled() bool {
	return s.enabled(KindAudio)
}

func (s *Stream) VideoEnabled() bool {
	return s.enabled(KindVideo)
}

func (s *Stream) enabled(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.track(kind)
	return tr != nil && !s.released && tr.Enabled()
}

// Release stops every track. Later calls do nothing.
func (s *Stream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	stopAll(s.tracks)
	slog.Debug("media released", "tracks", len(s.tracks))
}

func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
