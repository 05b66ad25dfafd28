package ws

import "encoding/json"

// Envelope is one frame on the wire and on the Redis relay.
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Origin is the instance that published the event.
	Origin string `json:"origin,omitempty"`
}

// client → server
type ClientMessage struct {
	Type string `json:"type"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encodeEvent(channel, eventType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: MsgEvent, Channel: channel, Event: eventType, Data: data})
}
