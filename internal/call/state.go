package call

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateAwaitingRole
	StateNegotiating
	StateConnected
	StateDisconnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring_media"
	case StateAwaitingRole:
		return "awaiting_role"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// forward lists the non-terminal moves. Closed and Failed are reachable from
// every non-terminal state and are not listed.
var forward = map[State]State{
	StateIdle:           StateAcquiringMedia,
	StateAcquiringMedia: StateAwaitingRole,
	StateAwaitingRole:   StateNegotiating,
	StateNegotiating:    StateConnected,
	StateConnected:      StateDisconnected,
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	next, ok := forward[from]
	return ok && next == to
}

// Role is the part a session plays in negotiation.
type Role int

const (
	RoleUnassigned Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unassigned"
	}
}
