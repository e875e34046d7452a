package media

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// sampleSource yields the next sample to send. io.EOF ends the track.
type sampleSource func() (pionmedia.Sample, error)

// SampleTrack is a Track backed by a pion TrackLocalStaticSample. Samples are
// written only while the track is enabled.
type SampleTrack struct {
	local   *webrtc.TrackLocalStaticSample
	kind    Kind
	enabled atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closer   io.Closer
}

var _ Track = (*SampleTrack)(nil)

func newSampleTrack(kind Kind, mimeType, id, streamID string, closer io.Closer) (*SampleTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: mimeType}
	if mimeType == webrtc.MimeTypeOpus {
		capability.ClockRate = 48000
		capability.Channels = 2
	} else {
		capability.ClockRate = 90000
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}

	t := &SampleTrack{
		local:  local,
		kind:   kind,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		closer: closer,
	}
	t.enabled.Store(true)
	return t, nil
}

func (t *SampleTrack) ID() string { return t.local.ID() }

func (t *SampleTrack) Kind() Kind { return t.kind }

func (t *SampleTrack) Enabled() bool { return t.enabled.Load() }

func (t *SampleTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// TrackLocal is what a peer connection attaches.
func (t *SampleTrack) TrackLocal() webrtc.TrackLocal { return t.local }

// Stop ends the pump and closes the underlying source.
func (t *SampleTrack) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
		if t.closer != nil {
			if err := t.closer.Close(); err != nil {
				slog.Debug("closing track source", "track", t.ID(), "err", err)
			}
		}
	})
}

// run paces samples by their duration until Stop or the source ends.
func (t *SampleTrack) run(next sampleSource) {
	defer close(t.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
		}

		sample, err := next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("media source failed", "track", t.ID(), "err", err)
			}
			return
		}

		if t.enabled.Load() {
			// ErrClosedPipe just means nothing is bound yet.
			if err := t.local.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				slog.Debug("write sample", "track", t.ID(), "err", err)
			}
		}

		timer.Reset(sample.Duration)
	}
}
