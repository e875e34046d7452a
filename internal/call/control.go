package call

import "github.com/vmihailenco/msgpack/v5"

// Control message types sent over the peer control channel.
const (
	ControlTrackState = "track_state"
)

// ControlMessage is the envelope for every control channel message.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// TrackState tells the other side whether our tracks carry signal.
type TrackState struct {
	Participant string `msgpack:"participant"`
	Client      string `msgpack:"client"`
	Audio       bool   `msgpack:"audio"`
	Video       bool   `msgpack:"video"`
}

// DecodePayload decodes the message payload into v.
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func encodeControl(t string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(ControlMessage{Type: t, Payload: b})
}

func decodeControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := msgpack.Unmarshal(data, &m)
	return m, err
}
