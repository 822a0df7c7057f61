package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModeCommand(t *testing.T) {
	cmd := NewModeCommand("s1", "mathpractice")

	assert.Equal(t, SubjectModeCommand, cmd.EventType())
	assert.Equal(t, map[string]interface{}{"session_id": "s1", "mode": "mathpractice"}, cmd.Payload())
	assert.False(t, cmd.Timestamp().IsZero())
}

func TestLifecycleRoundTrip(t *testing.T) {
	in := LifecycleEvent{
		Seq:        7,
		Type:       SessionDisconnected,
		SessionID:  "s1",
		UserID:     "alice",
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := in.Marshal()
	require.NoError(t, err)
	out, err := UnmarshalLifecycle(data)
	require.NoError(t, err)

	assert.Equal(t, in, out)
}
