package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

const opusFrame = 20 * time.Millisecond

// opusSilence is a single Opus comfort-noise frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// vp8KeyFrame and vp8InterFrame are minimal VP8 frames for a black 320x240
// picture.
var (
	vp8KeyFrame = []byte{
		0x90, 0x01, 0x00,
		0x9d, 0x01, 0x2a,
		0x40, 0x01,
		0xe0, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	vp8InterFrame = []byte{
		0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
)

// keyFrameInterval is how many video frames pass between key frames.
const keyFrameInterval = 60

// SyntheticProvider generates silent audio and black video. It stands in for
// capture hardware on headless hosts.
type SyntheticProvider struct{}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{}
}

func (p *SyntheticProvider) Open(ctx context.Context, c Constraints) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "warpcall-" + uuid.NewString()
	var tracks []Track

	if c.Audio != nil {
		audio, err := newSampleTrack(KindAudio, webrtc.MimeTypeOpus, "audio-"+uuid.NewString(), streamID, nil)
		if err != nil {
			return nil, err
		}
		go audio.run(func() (pionmedia.Sample, error) {
			return pionmedia.Sample{Data: opusSilence, Duration: opusFrame}, nil
		})
		tracks = append(tracks, audio)
	}

	if c.Video != nil {
		video, err := newSampleTrack(KindVideo, webrtc.MimeTypeVP8, "video-"+uuid.NewString(), streamID, nil)
		if err != nil {
			stopAll(tracks)
			return nil, err
		}
		fps := c.Video.FrameRate.Ideal
		if fps <= 0 {
			fps = 30
		}
		interval := time.Second / time.Duration(fps)
		frame := 0
		go video.run(func() (pionmedia.Sample, error) {
			data := vp8InterFrame
			if frame%keyFrameInterval == 0 {
				data = vp8KeyFrame
			}
			frame++
			return pionmedia.Sample{Data: data, Duration: interval}, nil
		})
		tracks = append(tracks, video)
	}

	return tracks, nil
}
