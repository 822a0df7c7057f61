package events

import (
	"encoding/json"
	"time"
)

// TopicSessionLifecycle is the in-process topic for connect/disconnect notices.
const TopicSessionLifecycle = "session.lifecycle"

const (
	SessionConnected    = "connected"
	SessionDisconnected = "disconnected"
)

// LifecycleEvent reports a session connecting or disconnecting. Seq increases
// monotonically per process so consumers can discard reordered deliveries.
type LifecycleEvent struct {
	Seq        uint64    `json:"seq"`
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	ClientType string    `json:"client_type,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e LifecycleEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func UnmarshalLifecycle(data []byte) (LifecycleEvent, error) {
	var e LifecycleEvent
	err := json.Unmarshal(data, &e)
	return e, err
}
