package network

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	MessageHello        MessageType = "hello"
	MessageKeepAlive    MessageType = "keepAlive"
	MessageLevelAdvance MessageType = "levelAdvance"
	MessageLevelReset   MessageType = "levelReset"
	MessageStatusQuery  MessageType = "statusQuery"
	MessageStatus       MessageType = "status"
	MessageLevelEvents  MessageType = "levelEvents"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

type Hello struct {
	ServerID string `json:"serverId"`
	HTTP     string `json:"http,omitempty"`
	Level    int    `json:"level"`
}

type KeepAlive struct {
	ServerID string    `json:"serverId"`
	Time     time.Time `json:"time"`
}

// LevelCommand is the payload of levelAdvance and levelReset requests.
type LevelCommand struct {
	RequestedBy string `json:"requestedBy,omitempty"`
}

type StatusQuery struct {
	RequestedBy string `json:"requestedBy,omitempty"`
}

type Status struct {
	ServerID      string    `json:"serverId"`
	Level         int       `json:"level"`
	Stage         int       `json:"stage"`
	State         string    `json:"state"`
	Phase         string    `json:"phase,omitempty"`
	Transitioning bool      `json:"transitioning"`
	Attempted     int       `json:"attempted"`
	Total         int       `json:"total"`
	Placed        int       `json:"placed"`
	Skipped       int       `json:"skipped"`
	Objects       int       `json:"objects"`
	Timestamp     time.Time `json:"timestamp"`
}

type LevelEvents struct {
	ServerID string       `json:"serverId"`
	Events   []EventState `json:"events"`
}

type EventState struct {
	Seq      uint64    `json:"seq"`
	Type     string    `json:"type"`
	Level    int       `json:"level"`
	Object   string    `json:"object,omitempty"`
	Template string    `json:"template,omitempty"`
	Position []float64 `json:"position,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func Encode(msg Envelope) ([]byte, error) {
	return json.Marshal(msg)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// DecodePayload unmarshals the envelope payload into v. A null or missing
// payload leaves v untouched.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(env.Payload, v)
}
