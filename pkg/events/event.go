package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event, used as the subject.
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// SubjectModeCommand asks whichever instance holds a session to change its
// copilot mode.
const SubjectModeCommand = "commands.copilot.mode"

func NewModeCommand(sessionID, mode string) BaseEvent {
	return BaseEvent{
		Type: SubjectModeCommand,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"mode":       mode,
		},
		OccurredAt: time.Now(),
	}
}
