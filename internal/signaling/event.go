package signaling

import (
	"errors"
	"fmt"
)

// EventKind enumerates the typed events surfaced by a Channel.
type EventKind int

const (
	EventInitiateCall EventKind = iota + 1
	EventPeerJoined
	EventRoomFull
	EventWaitingForPeer
	EventOffer
	EventAnswer
	EventICECandidate
	EventPeerDisconnected
	// EventDisconnected is synthesized when the relay transport drops.
	EventDisconnected
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventInitiateCall:
		return "initiate_call"
	case EventPeerJoined:
		return "peer_joined"
	case EventRoomFull:
		return "room_full"
	case EventWaitingForPeer:
		return "waiting_for_peer"
	case EventOffer:
		return "offer"
	case EventAnswer:
		return "answer"
	case EventICECandidate:
		return "ice_candidate"
	case EventPeerDisconnected:
		return "peer_disconnected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one decoded signaling message.
type Event struct {
	Kind      EventKind
	SDP       string
	Candidate *CandidatePayload
	Err       error
}

// ErrRelay wraps error strings reported by the relay.
var ErrRelay = errors.New("relay error")

// decodeEvent converts a wire message into an Event.
func decodeEvent(msg *Message) (Event, error) {
	if err := msg.Validate(); err != nil {
		return Event{}, err
	}

	switch msg.Type {
	case MessageTypeInitiateCall:
		return Event{Kind: EventInitiateCall}, nil
	case MessageTypePeerJoined:
		return Event{Kind: EventPeerJoined}, nil
	case MessageTypeRoomFull:
		return Event{Kind: EventRoomFull}, nil
	case MessageTypeWaitingForPeer:
		return Event{Kind: EventWaitingForPeer}, nil
	case MessageTypePeerDisconnected:
		return Event{Kind: EventPeerDisconnected}, nil
	case MessageTypeOffer, MessageTypeAnswer:
		var p SDPPayload
		if err := msg.DecodePayload(&p); err != nil {
			return Event{}, err
		}
		kind := EventOffer
		if msg.Type == MessageTypeAnswer {
			kind = EventAnswer
		}
		return Event{Kind: kind, SDP: p.SDP}, nil
	case MessageTypeICECandidate:
		var p CandidatePayload
		if err := msg.DecodePayload(&p); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventICECandidate, Candidate: &p}, nil
	case MessageTypeError:
		var p ErrorPayload
		if len(msg.Payload) > 0 {
			_ = msg.DecodePayload(&p)
		}
		if p.Error == "" {
			p.Error = "unknown error"
		}
		return Event{Kind: EventError, Err: fmt.Errorf("%w: %s", ErrRelay, p.Error)}, nil
	}
	return Event{}, fmt.Errorf("%w: %q is not a relay event", ErrInvalidMessage, msg.Type)
}

// encodeEvent converts an outgoing Event into a wire message. Only the
// negotiation events may be sent by a client.
func encodeEvent(ev Event) (*Message, error) {
	switch ev.Kind {
	case EventOffer:
		return NewMessage(MessageTypeOffer, SDPPayload{Type: MessageTypeOffer, SDP: ev.SDP})
	case EventAnswer:
		return NewMessage(MessageTypeAnswer, SDPPayload{Type: MessageTypeAnswer, SDP: ev.SDP})
	case EventICECandidate:
		if ev.Candidate == nil {
			return nil, fmt.Errorf("%w: ice_candidate without candidate", ErrInvalidMessage)
		}
		return NewMessage(MessageTypeICECandidate, ev.Candidate)
	}
	return nil, fmt.Errorf("%w: cannot send %s", ErrInvalidMessage, ev.Kind)
}
