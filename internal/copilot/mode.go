// Package copilot tells the copilot widget which interaction surface to show.
package copilot

import (
	"chat-session-be/internal/connctx"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/internal/usersession"
)

const (
	// EventMode is pushed to the client whenever the mode changes.
	EventMode = "copilot_mode"
	// EventGetMode is sent by the client on (re)connect to ask for the mode.
	EventGetMode = "get_copilot_mode"

	// SessionKeyMode is where the current mode lives in the session record.
	SessionKeyMode = "copilot_mode"

	// ModeMathPractice hides the microphone and upload controls.
	ModeMathPractice = "mathpractice"
)

type ModePayload struct {
	Mode string `json:"mode"`
}

type Broadcaster struct {
	sessions *usersession.Store
	logger   logger.ILogger
}

func NewBroadcaster(sessions *usersession.Store, log logger.ILogger) *Broadcaster {
	return &Broadcaster{sessions: sessions, logger: log}
}

// SetMode records mode in the session and then pushes it to the client.
// Without an emitter nothing happens, so stored and broadcast modes never
// diverge.
func (b *Broadcaster) SetMode(cc *connctx.Context, mode string) {
	if !cc.CanEmit() {
		return
	}

	if err := b.sessions.Set(cc, SessionKeyMode, mode); err != nil {
		b.logger.Error("Copilot", "Failed to store mode", map[string]interface{}{"error": err, "mode": mode})
		return
	}
	cc.Emitter.Emit(EventMode, ModePayload{Mode: mode})

	b.logger.Debug("Copilot", "Mode sent", map[string]interface{}{
		"session_id": cc.Session.ID(),
		"mode":       mode,
	})
}

// GetMode returns the last mode set for the session.
func (b *Broadcaster) GetMode(cc *connctx.Context) (string, bool) {
	mode, ok := b.sessions.Get(cc, SessionKeyMode, nil).(string)
	return mode, ok
}

func (b *Broadcaster) EnableMathPractice(cc *connctx.Context) {
	b.SetMode(cc, ModeMathPractice)
}

// ReplayMode re-sends the stored mode, answering EventGetMode. It reports
// whether anything was sent.
func (b *Broadcaster) ReplayMode(cc *connctx.Context) bool {
	if !cc.CanEmit() {
		return false
	}
	mode, ok := b.GetMode(cc)
	if !ok {
		return false
	}
	cc.Emitter.Emit(EventMode, ModePayload{Mode: mode})
	return true
}
