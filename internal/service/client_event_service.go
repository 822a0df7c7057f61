package service

import (
	"encoding/json"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/copilot"
	"chat-session-be/internal/pkg/logger"
)

// EventChatSettingsChange carries the full new chat settings object.
const EventChatSettingsChange = "chat_settings_change"

// ClientEventService answers frames sent by connected clients.
type ClientEventService struct {
	broadcaster *copilot.Broadcaster
	logger      logger.ILogger
}

func NewClientEventService(broadcaster *copilot.Broadcaster, log logger.ILogger) *ClientEventService {
	return &ClientEventService{broadcaster: broadcaster, logger: log}
}

// HandleClientEvent implements websocket.EventHandler.
func (s *ClientEventService) HandleClientEvent(cc *connctx.Context, event string, data json.RawMessage) {
	if !cc.Active() {
		return
	}

	switch event {
	case copilot.EventGetMode:
		s.broadcaster.ReplayMode(cc)

	case EventChatSettingsChange:
		var settings map[string]interface{}
		if err := json.Unmarshal(data, &settings); err != nil {
			s.logger.Warn("ClientEvent", "Invalid chat settings payload", map[string]interface{}{
				"session_id": cc.Session.ID(),
				"error":      err.Error(),
			})
			return
		}
		cc.Session.SetChatSettings(settings)

	default:
		s.logger.Debug("ClientEvent", "Unhandled client event", map[string]interface{}{
			"session_id": cc.Session.ID(),
			"event":      event,
		})
	}
}
