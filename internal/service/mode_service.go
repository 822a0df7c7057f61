package service

import (
	"context"
	"errors"
	"fmt"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/copilot"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/pkg/events"
	pktNats "chat-session-be/pkg/nats"
)

var ErrSessionNotConnected = errors.New("session is not connected")

// SessionLocator finds the connection serving a session on this instance.
type SessionLocator interface {
	Lookup(sessionID string) (*connctx.Context, bool)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type EventSubscriber interface {
	Subscribe(subject string, handler pktNats.EventHandler) error
}

// ModeService changes copilot modes by session id, forwarding to the owning
// instance over NATS when the session is connected elsewhere.
type ModeService struct {
	broadcaster *copilot.Broadcaster
	sessions    SessionLocator
	publisher   EventPublisher
	subscriber  EventSubscriber
	logger      logger.ILogger
}

// NewModeService accepts nil publisher/subscriber when NATS is unavailable.
func NewModeService(broadcaster *copilot.Broadcaster, sessions SessionLocator, pub EventPublisher, sub EventSubscriber, log logger.ILogger) *ModeService {
	return &ModeService{
		broadcaster: broadcaster,
		sessions:    sessions,
		publisher:   pub,
		subscriber:  sub,
		logger:      log,
	}
}

// Start listens for mode commands from other instances.
func (s *ModeService) Start() error {
	if s.subscriber == nil {
		return nil
	}
	if err := s.subscriber.Subscribe(events.SubjectModeCommand, s.handleCommand); err != nil {
		return err
	}
	s.logger.Info("ModeService", "Listening for mode commands", map[string]interface{}{"subject": events.SubjectModeCommand})
	return nil
}

func (s *ModeService) handleCommand(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	sessionID, _ := payload["session_id"].(string)
	mode, _ := payload["mode"].(string)
	if sessionID == "" || mode == "" {
		return fmt.Errorf("mode command missing session_id or mode")
	}

	cc, ok := s.sessions.Lookup(sessionID)
	if !ok {
		// Owned by another instance, or gone.
		return nil
	}
	s.broadcaster.SetMode(cc, mode)
	return nil
}

// SetMode applies mode to a local session and reports true, or forwards it
// and reports false.
func (s *ModeService) SetMode(ctx context.Context, sessionID, mode string) (bool, error) {
	if cc, ok := s.sessions.Lookup(sessionID); ok {
		s.broadcaster.SetMode(cc, mode)
		return true, nil
	}
	if s.publisher == nil {
		return false, ErrSessionNotConnected
	}
	if err := s.publisher.Publish(ctx, events.NewModeCommand(sessionID, mode)); err != nil {
		return false, err
	}
	return false, nil
}

func (s *ModeService) EnableMathPractice(ctx context.Context, sessionID string) (bool, error) {
	return s.SetMode(ctx, sessionID, copilot.ModeMathPractice)
}

// GetMode reads the mode of a local session.
func (s *ModeService) GetMode(sessionID string) (string, bool, error) {
	cc, ok := s.sessions.Lookup(sessionID)
	if !ok {
		return "", false, ErrSessionNotConnected
	}
	mode, set := s.broadcaster.GetMode(cc)
	return mode, set, nil
}
