package relay

import (
	"encoding/json"

	"github.com/BioHazard786/Warpcall/internal/signaling"
)

// inbound is a message read from a client, tagged with its sender.
type inbound struct {
	client *Client
	msg    *signaling.Message
}

func errorMessage(text string) *signaling.Message {
	payload, _ := json.Marshal(signaling.ErrorPayload{Error: text})
	return &signaling.Message{Type: signaling.MessageTypeError, Payload: payload}
}

func notice(msgType, roomID string) *signaling.Message {
	return &signaling.Message{Type: msgType, RoomID: roomID}
}
