package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// FileProvider plays an Ogg/Opus file as the microphone and an IVF/VP8 file
// as the camera, looping both.
type FileProvider struct {
	AudioPath string
	VideoPath string
}

func NewFileProvider(audioPath, videoPath string) *FileProvider {
	return &FileProvider{AudioPath: audioPath, VideoPath: videoPath}
}

func (p *FileProvider) Open(ctx context.Context, c Constraints) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "warpcall-" + uuid.NewString()
	var tracks []Track

	if c.Audio != nil {
		audio, err := openOggTrack(p.AudioPath, streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, audio)
	}

	if c.Video != nil {
		video, err := openIVFTrack(p.VideoPath, streamID)
		if err != nil {
			stopAll(tracks)
			return nil, err
		}
		tracks = append(tracks, video)
	}

	return tracks, nil
}

// openDevice opens a media file, mapping filesystem errors onto the device
// errors a capture provider would report.
func openDevice(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("no file configured: %w", ErrDeviceUnavailable)
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrDeviceBusy, err)
	}
}

func openOggTrack(path, streamID string) (*SampleTrack, error) {
	f, err := openDevice(path)
	if err != nil {
		return nil, err
	}

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not an ogg/opus file: %w", ErrDeviceUnavailable, path, err)
	}

	track, err := newSampleTrack(KindAudio, webrtc.MimeTypeOpus, "audio-"+uuid.NewString(), streamID, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	go track.run(oggSamples(f, reader))
	return track, nil
}

// oggSamples yields one sample per audio page, rewinding f at EOF. Pages
// with a zero granule position are headers (OpusTags) and are skipped.
func oggSamples(f *os.File, reader *oggreader.OggReader) sampleSource {
	var lastGranule uint64
	return func() (pionmedia.Sample, error) {
		for rewinds := 0; rewinds < 2; {
			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if reader, err = rewindOgg(f); err != nil {
					return pionmedia.Sample{}, err
				}
				lastGranule = 0
				rewinds++
				continue
			}
			if err != nil {
				return pionmedia.Sample{}, err
			}
			if header.GranulePosition == 0 {
				continue
			}

			samples := header.GranulePosition - lastGranule
			if header.GranulePosition < lastGranule {
				samples = 0
			}
			lastGranule = header.GranulePosition
			duration := time.Duration(float64(samples) / 48000 * float64(time.Second))
			return pionmedia.Sample{Data: page, Duration: duration}, nil
		}
		return pionmedia.Sample{}, io.EOF
	}
}

func rewindOgg(f *os.File) (*oggreader.OggReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	reader, _, err := oggreader.NewWith(f)
	return reader, err
}

func openIVFTrack(path, streamID string) (*SampleTrack, error) {
	f, err := openDevice(path)
	if err != nil {
		return nil, err
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not an ivf file: %w", ErrDeviceUnavailable, path, err)
	}
	if header.FourCC != "VP80" {
		f.Close()
		return nil, fmt.Errorf("%w: %s holds %s, want VP80", ErrDeviceUnavailable, path, header.FourCC)
	}

	interval := time.Second / 30
	if header.TimebaseDenominator > 0 {
		interval = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	track, err := newSampleTrack(KindVideo, webrtc.MimeTypeVP8, "video-"+uuid.NewString(), streamID, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	go track.run(func() (pionmedia.Sample, error) {
		for attempt := 0; attempt < 2; attempt++ {
			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return pionmedia.Sample{}, err
				}
				if reader, _, err = ivfreader.NewWith(f); err != nil {
					return pionmedia.Sample{}, err
				}
				continue
			}
			if err != nil {
				return pionmedia.Sample{}, err
			}
			return pionmedia.Sample{Data: frame, Duration: interval}, nil
		}
		return pionmedia.Sample{}, io.EOF
	})
	return track, nil
}
