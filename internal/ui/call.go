package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// CallStatus is what the call view shows. The caller builds it from the
// session snapshot on every change.
type CallStatus struct {
	RoomID string
	State  string
	Role   string
	Err    string

	// Failed and Ended are set once the session has finished.
	Failed bool
	Ended  bool

	Waiting bool

	Audio    bool
	Video    bool
	HasVideo bool

	RemoteTracks int
	RemoteName   string
	RemoteKnown  bool
	RemoteAudio  bool
	RemoteVideo  bool

	ConnectedAt time.Time
}

// Controls are the actions the keyboard drives.
type Controls interface {
	ToggleAudio() (bool, error)
	ToggleVideo() (bool, error)
	End()
}

// CallUI runs the live call view.
type CallUI struct {
	model   *callModel
	updates chan CallStatus

	mu      sync.Mutex
	program *tea.Program
	opts    []tea.ProgramOption
}

type statusMsg CallStatus

type updatesClosedMsg struct{}

type toggledMsg struct {
	what string
	on   bool
	err  error
}

type tickMsg time.Time

func NewCallUI(controls Controls, initial CallStatus, opts ...tea.ProgramOption) *CallUI {
	updates := make(chan CallStatus, 32)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallUI{
		model: &callModel{
			controls: controls,
			status:   initial,
			spinner:  s,
			updates:  updates,
			now:      time.Now,
		},
		updates: updates,
		opts:    opts,
	}
}

// Update hands the view a new status. Statuses are dropped while the view is
// behind; the next one carries the full picture anyway.
func (u *CallUI) Update(s CallStatus) {
	select {
	case u.updates <- s:
	default:
	}
}

// Close tells the view no more statuses are coming.
func (u *CallUI) Close() {
	close(u.updates)
}

// Run blocks until the call view exits.
func (u *CallUI) Run() error {
	u.mu.Lock()
	u.program = tea.NewProgram(u.model, u.opts...)
	p := u.program
	u.mu.Unlock()

	_, err := p.Run()
	return err
}

// Quit stops the view from outside the program.
func (u *CallUI) Quit() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.program != nil {
		u.program.Quit()
	}
}

type callModel struct {
	controls  Controls
	status    CallStatus
	spinner   spinner.Model
	updates   <-chan CallStatus
	notice    string
	hangingUp bool
	done      bool
	now       func() time.Time
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *callModel) listen() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.updates
		if !ok {
			return updatesClosedMsg{}
		}
		return statusMsg(s)
	}
}

func (m *callModel) toggle(what string, fn func() (bool, error)) tea.Cmd {
	return func() tea.Msg {
		on, err := fn()
		return toggledMsg{what: what, on: on, err: err}
	}
}

func (m *callModel) hangUp() tea.Cmd {
	m.hangingUp = true
	return tea.Sequence(func() tea.Msg {
		m.controls.End()
		return nil
	}, tea.Quit)
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.hangingUp || m.done {
			return m, nil
		}
		switch msg.String() {
		case "m":
			return m, m.toggle("Microphone", m.controls.ToggleAudio)
		case "v":
			return m, m.toggle("Camera", m.controls.ToggleVideo)
		case "q", "ctrl+c", "esc":
			return m, m.hangUp()
		}

	case statusMsg:
		m.status = CallStatus(msg)
		if m.status.Ended {
			m.done = true
			return m, tea.Quit
		}
		return m, m.listen()

	case updatesClosedMsg:
		m.done = true
		return m, tea.Quit

	case toggledMsg:
		switch {
		case msg.err != nil:
			m.notice = ErrorStyle.Render(msg.err.Error())
		case msg.on:
			m.notice = fmt.Sprintf("%s on", msg.what)
		default:
			m.notice = fmt.Sprintf("%s off", msg.what)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.done {
			return m, tick()
		}
	}
	return m, nil
}

func (m *callModel) View() string {
	s := m.status
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  %s\n\n", IconCall, TitleStyle.Render("Room "+s.RoomID),
		badgeStyle(s.State, s.Failed).Render(strings.ToUpper(s.State)))

	switch {
	case s.Failed:
		fmt.Fprintf(&b, "%s %s\n", IconError, ErrorStyle.Render(s.Err))
	case s.Ended:
		fmt.Fprintf(&b, "%s Call ended\n", IconHangUp)
	case m.hangingUp:
		fmt.Fprintf(&b, "%s Hanging up...\n", m.spinner.View())
	case s.State == "connected":
		fmt.Fprintf(&b, "%s In call %s\n", IconTime, formatElapsed(m.now().Sub(s.ConnectedAt)))
	case s.State == "disconnected":
		fmt.Fprintf(&b, "%s The other side left. Press q to hang up.\n", IconWarning)
	case s.Waiting:
		fmt.Fprintf(&b, "%s %s Waiting for someone to join...\n", m.spinner.View(), IconWaiting)
	default:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), stateLine(s.State))
	}
	if s.Role != "" && s.Role != "unassigned" {
		b.WriteString(MutedStyle.Render("role: "+s.Role) + "\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "You      %s  %s\n", micIcon(s.Audio), camIcon(s.HasVideo, s.Video))

	peer := "Peer    "
	if s.RemoteKnown && s.RemoteName != "" {
		peer = fmt.Sprintf("%-8s", truncate(s.RemoteName, 8))
	}
	switch {
	case s.RemoteKnown:
		fmt.Fprintf(&b, "%s %s  %s  %s\n", peer, micIcon(s.RemoteAudio), camIcon(s.RemoteTracks > 1, s.RemoteVideo),
			MutedStyle.Render(fmt.Sprintf("%d track(s)", s.RemoteTracks)))
	case s.RemoteTracks > 0:
		fmt.Fprintf(&b, "%s %s %s\n", peer, IconPeer, MutedStyle.Render(fmt.Sprintf("%d track(s)", s.RemoteTracks)))
	default:
		fmt.Fprintf(&b, "%s %s\n", peer, MutedStyle.Render("not connected"))
	}

	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}

	keys := []string{KeyStyle.Render("m") + " mic"}
	if s.HasVideo {
		keys = append(keys, KeyStyle.Render("v")+" camera")
	}
	keys = append(keys, KeyStyle.Render("q")+" hang up")
	b.WriteString("\n" + MutedStyle.Render(strings.Join(keys, "  ·  ")))

	return CallBoxStyle.Render(b.String()) + "\n"
}

func stateLine(state string) string {
	switch state {
	case "idle", "acquiring_media":
		return "Opening microphone and camera..."
	case "awaiting_role":
		return "Joining room..."
	case "negotiating":
		return "Connecting to peer..."
	default:
		return state
	}
}

func micIcon(on bool) string {
	if on {
		return IconMic + " mic on "
	}
	return IconMicOff + " mic off"
}

func camIcon(has, on bool) string {
	switch {
	case !has:
		return MutedStyle.Render("no camera")
	case on:
		return IconCamera + " camera on"
	default:
		return IconCamOff + " camera off"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
