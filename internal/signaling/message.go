package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is the JSON envelope exchanged with the relay.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoin = "join"

	MessageTypeInitiateCall     = "initiate_call"
	MessageTypePeerJoined       = "peer_joined"
	MessageTypeRoomFull         = "room_full"
	MessageTypeWaitingForPeer   = "waiting_for_peer"
	MessageTypePeerDisconnected = "peer_disconnected"
	MessageTypeError            = "error"

	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice_candidate"
)

// SDPPayload carries an offer or answer description.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload mirrors RTCIceCandidateInit.
type CandidatePayload struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Error string `json:"error"`
}

var ErrInvalidMessage = errors.New("invalid signaling message")

// NewMessage builds a message with an optional JSON payload.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// DecodePayload unmarshals the message payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, m.Type, err)
	}
	return nil
}

// Validate checks the fields required by the message type.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeJoin:
		if m.RoomID == "" {
			return fmt.Errorf("%w: join without room_id", ErrInvalidMessage)
		}
	case MessageTypeOffer, MessageTypeAnswer:
		var p SDPPayload
		if err := m.DecodePayload(&p); err != nil {
			return err
		}
		if p.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidMessage, m.Type)
		}
		if p.Type != "" && p.Type != m.Type {
			return fmt.Errorf("%w: %s carries %q description", ErrInvalidMessage, m.Type, p.Type)
		}
	case MessageTypeICECandidate:
		var p CandidatePayload
		if err := m.DecodePayload(&p); err != nil {
			return err
		}
		if p.Candidate == "" {
			return fmt.Errorf("%w: ice_candidate without candidate", ErrInvalidMessage)
		}
	case MessageTypeInitiateCall, MessageTypePeerJoined, MessageTypeRoomFull,
		MessageTypeWaitingForPeer, MessageTypePeerDisconnected, MessageTypeError:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

// IsRelayed reports whether the relay forwards this type between room members.
func IsRelayed(msgType string) bool {
	switch msgType {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		return true
	}
	return false
}
