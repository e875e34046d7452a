package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

// localTrack is implemented by media tracks that pion can send.
type localTrack interface {
	TrackLocal() webrtc.TrackLocal
}

type pionOptions struct {
	net           transport.Net
	loggerFactory logging.LoggerFactory
}

// Option customises a PionFactory.
type Option func(*pionOptions)

// WithNet makes every connection use n instead of the host network.
func WithNet(n transport.Net) Option {
	return func(o *pionOptions) { o.net = n }
}

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(o *pionOptions) { o.loggerFactory = f }
}

// PionFactory creates pion-backed transports.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ Factory = (*PionFactory)(nil)

// NewPionFactory builds a factory whose connections use stunServers for ICE.
func NewPionFactory(stunServers []string, opts ...Option) (*PionFactory, error) {
	o := pionOptions{loggerFactory: SlogLoggerFactory{}}
	for _, opt := range opts {
		opt(&o)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = o.loggerFactory
	if o.net != nil {
		se.SetNet(o.net)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	return &PionFactory{
		api: webrtc.NewAPI(
			webrtc.WithSettingEngine(se),
			webrtc.WithMediaEngine(mediaEngine),
		),
		config: cfg,
	}, nil
}

func (f *PionFactory) NewTransport(opts Options) (Transport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &pionTransport{pc: pc, handlers: opts.Handlers}
	t.wire()

	if opts.Initiator {
		dc, err := pc.CreateDataChannel(ControlLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create control channel: %w", err)
		}
		t.bindControl(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() == ControlLabel {
				t.bindControl(dc)
			}
		})
	}

	return t, nil
}

type pionTransport struct {
	pc       *webrtc.PeerConnection
	handlers Handlers

	mu      sync.Mutex
	control *webrtc.DataChannel
	closed  bool
}

func (t *pionTransport) wire() {
	h := t.handlers

	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || h.OnLocalCandidate == nil {
			return
		}
		init := c.ToJSON()
		h.OnLocalCandidate(Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", "state", s.String())
		if h.OnConnectionState != nil {
			h.OnConnectionState(mapState(s))
		}
	})

	t.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := media.KindAudio
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			kind = media.KindVideo
		}
		if h.OnRemoteTrack != nil {
			h.OnRemoteTrack(RemoteTrack{ID: remote.ID(), StreamID: remote.StreamID(), Kind: kind})
		}
		go drain(remote)
	})
}

// drain reads the remote track so its buffers never fill. Playback is not
// handled here.
func drain(remote *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

func mapState(s webrtc.PeerConnectionState) ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}

func (t *pionTransport) bindControl(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.control = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		if t.handlers.OnControlOpen != nil {
			t.handlers.OnControlOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if t.handlers.OnControlMessage != nil {
			t.handlers.OnControlMessage(msg.Data)
		}
	})
}

func (t *pionTransport) AddTrack(track media.Track) error {
	lt, ok := track.(localTrack)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTrack, track.ID())
	}

	sender, err := t.pc.AddTrack(lt.TrackLocal())
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	// RTCP has to be read for interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Debug("rtcp reader stopped", "err", err)
				}
				return
			}
		}
	}()
	return nil
}

func (t *pionTransport) CreateOffer(ctx context.Context) (Description, error) {
	return t.createLocal(ctx, SDPTypeOffer)
}

func (t *pionTransport) CreateAnswer(ctx context.Context) (Description, error) {
	return t.createLocal(ctx, SDPTypeAnswer)
}

func (t *pionTransport) createLocal(ctx context.Context, typ SDPType) (Description, error) {
	if err := ctx.Err(); err != nil {
		return Description{}, err
	}

	var (
		desc webrtc.SessionDescription
		err  error
	)
	if typ == SDPTypeOffer {
		desc, err = t.pc.CreateOffer(nil)
	} else {
		desc, err = t.pc.CreateAnswer(nil)
	}
	if err != nil {
		return Description{}, fmt.Errorf("create %s: %w", typ, err)
	}

	if err := ctx.Err(); err != nil {
		return Description{}, err
	}
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return Description{}, fmt.Errorf("set local %s: %w", typ, err)
	}
	return Description{Type: typ, SDP: desc.SDP}, nil
}

func (t *pionTransport) SetRemoteDescription(d Description) error {
	err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(d.Type)),
		SDP:  d.SDP,
	})
	if err != nil {
		return fmt.Errorf("set remote %s: %w", d.Type, err)
	}
	return nil
}

func (t *pionTransport) AddICECandidate(c Candidate) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (t *pionTransport) SendControl(data []byte) error {
	t.mu.Lock()
	dc, closed := t.control, t.closed
	t.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrControlNotReady
	}
	return dc.Send(data)
}

// Close closes the peer connection. Later calls return nil.
func (t *pionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.pc.Close()
}
