package realtime

import "encoding/json"

// Inbound events.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
)

// Outbound events.
const (
	EventReceiveMessage = "receiveMessage"
	EventUserJoined     = "userJoined"
	EventAck            = "ack"
	EventError          = "error"
)

// Frame is the websocket envelope in both directions. Ack echoes the
// caller's correlation number when one was sent.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int            `json:"ack,omitempty"`
}

func Encode(event string, data any, ack *int) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw, Ack: ack})
}
