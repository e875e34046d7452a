package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/peer"
	"github.com/BioHazard786/Warpcall/internal/signaling"
	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagAudioOnly    bool
	flagParticipant  string
	flagAudioFile    string
	flagVideoFile    string
	flagDomain       string
	flagSTUN         string
	flagMediaTimeout time.Duration
	flagConfig       string
)

var callCmd = &cobra.Command{
	Use:     "call [room-id|url]",
	Aliases: []string{"c"},
	Short:   "Start or join a call",
	Long: `Start a call in a new room, or join an existing room by ID or link.

Without a room argument a fresh room is requested from the relay and its ID is
printed for the other side. The first person in a room places the call; the
second answers it. A room holds two people.

Keys during a call: m toggles the microphone, v the camera, q hangs up.

Examples:
  warpcall call
  warpcall call amber-falcon-river-stone
  warpcall call https://warpcall.qzz.io/r/amber-falcon-river-stone --audio-only
  warpcall call --audio-file voice.ogg --video-file clip.ivf`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCall(cmd.Context(), args)
	},
}

func runCall(ctx context.Context, args []string) error {
	cfg, err := config.Load(config.Options{
		ConfigFile:   flagConfig,
		Domain:       flagDomain,
		STUNServer:   flagSTUN,
		MediaTimeout: flagMediaTimeout,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roomID, err := resolveRoom(ctx, cfg, args)
	if err != nil {
		return err
	}

	mediaType := media.Video
	if flagAudioOnly {
		mediaType = media.Audio
	}

	var provider media.Provider = media.NewSyntheticProvider()
	if flagAudioFile != "" || flagVideoFile != "" {
		provider = media.NewFileProvider(flagAudioFile, flagVideoFile)
		if flagVideoFile == "" {
			mediaType = media.Audio
		}
	}

	peers, err := peer.NewPionFactory(cfg.GetSTUNServers(),
		peer.WithLoggerFactory(peer.SlogLoggerFactory{Logger: slog.Default()}))
	if err != nil {
		return fmt.Errorf("set up WebRTC: %w", err)
	}

	mgr := call.NewManager(call.Deps{
		Media:        provider,
		Signaling:    func(string) signaling.Transport { return signaling.NewClient(cfg.WebSocketURL) },
		Peers:        peers,
		MediaTimeout: cfg.MediaTimeout,
	})
	defer mgr.Close()

	participant := flagParticipant
	if participant == "" {
		participant, _ = os.Hostname()
	}

	h, err := mgr.StartSession(ctx, call.Options{
		RoomID:      roomID,
		MediaType:   mediaType,
		Participant: participant,
	})
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}

	notes, unsubscribe := h.Subscribe()
	defer unsubscribe()

	view := ui.NewCallUI(h, callStatus(h.Snapshot(), false))
	go forwardStatus(notes, view)

	fmt.Println()
	if err := view.Run(); err != nil {
		slog.Error("call view", "err", err)
	}
	h.End()

	snap := h.Snapshot()
	fmt.Println()
	ui.RenderCallSummary(callSummary(snap))

	if snap.State == call.StateFailed {
		return friendlyError(snap.Err)
	}
	return nil
}

func resolveRoom(ctx context.Context, cfg *config.Config, args []string) (string, error) {
	if len(args) == 1 {
		return parseRoomInput(args[0])
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Creating room...")
	roomID, err := requestRoom(ctx, cfg.RoomEndpoint())
	stopSpinner()
	if err != nil {
		return "", err
	}

	ui.RenderRoomInfo(roomID, cfg.GetRoomLink(roomID))
	return roomID, nil
}

// forwardStatus feeds session notifications to the view until the session
// ends.
func forwardStatus(notes <-chan call.Notification, view *ui.CallUI) {
	defer view.Close()

	waiting := false
	for n := range notes {
		if n.Kind == call.NotifyWaitingForPeer {
			waiting = true
		}
		view.Update(callStatus(n.Snapshot, waiting))
	}
}

func callStatus(s call.Snapshot, waiting bool) ui.CallStatus {
	st := ui.CallStatus{
		RoomID:       s.RoomID,
		State:        s.State.String(),
		Role:         s.Role.String(),
		Failed:       s.State == call.StateFailed,
		Ended:        s.State.Terminal(),
		Waiting:      waiting && s.State < call.StateNegotiating,
		Audio:        s.AudioEnabled,
		Video:        s.VideoEnabled,
		HasVideo:     s.MediaType == media.Video,
		RemoteTracks: len(s.RemoteTracks),
		ConnectedAt:  s.ConnectedAt,
	}
	if s.Err != nil {
		st.Err = friendlyError(s.Err).Error()
	}
	if rs := s.RemoteState; rs != nil && s.State == call.StateConnected {
		st.RemoteKnown = true
		st.RemoteName = rs.Participant
		st.RemoteAudio = rs.Audio
		st.RemoteVideo = rs.Video
	}
	return st
}

func callSummary(s call.Snapshot) ui.CallSummary {
	states := make([]string, len(s.History))
	for i, st := range s.History {
		states[i] = st.String()
	}

	sum := ui.CallSummary{
		RoomID:      s.RoomID,
		Participant: s.Participant,
		Media:       s.MediaType.String(),
		Outcome:     s.State.String(),
		States:      states,
		Started:     s.StartedAt,
		Connected:   s.ConnectedAt,
		Ended:       s.EndedAt,
	}
	if s.Role != call.RoleUnassigned {
		sum.Role = s.Role.String()
	}
	if s.Err != nil {
		sum.Err = s.Err.Error()
	}
	return sum
}

// friendlyError puts the common failure causes in words a caller can act on.
func friendlyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, call.ErrRoomFull):
		return fmt.Errorf("the room already has two people in it")
	case errors.Is(err, media.ErrPermissionDenied):
		return fmt.Errorf("access to the microphone or camera was denied")
	case errors.Is(err, media.ErrDeviceUnavailable):
		return fmt.Errorf("no usable microphone or camera: %w", err)
	case errors.Is(err, call.ErrMediaTimeout):
		return fmt.Errorf("the microphone or camera took too long to start")
	case errors.Is(err, call.ErrChannel):
		return fmt.Errorf("lost contact with the relay: %w", err)
	case errors.Is(err, call.ErrPeerLost):
		return fmt.Errorf("the other side left before the call connected")
	case errors.Is(err, call.ErrNegotiation):
		return fmt.Errorf("could not connect to the other side: %w", err)
	default:
		return err
	}
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().BoolVarP(&flagAudioOnly, "audio-only", "a", false, "Audio only, no camera")
	callCmd.Flags().StringVarP(&flagParticipant, "participant", "n", "", "Name shown to the other side (default: hostname)")
	callCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Ogg/Opus file to use as the microphone")
	callCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "IVF/VP8 file to use as the camera")
	callCmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Relay domain or URL")
	callCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server(s), comma separated")
	callCmd.Flags().DurationVar(&flagMediaTimeout, "media-timeout", 0, "How long to wait for media once the peer is found")
	callCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Path to a YAML config file")
}
