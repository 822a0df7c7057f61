package service

import (
	"context"
	"sync"
	"time"

	"chat-session-be/internal/pkg/logger"
	"chat-session-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// SessionDeleter drops a session's stored state.
type SessionDeleter interface {
	Delete(sessionID string)
}

// SessionLifecycleService carries connect/disconnect notices over the
// in-process bus and removes the state of sessions that do not come back
// within the reconnect grace period.
type SessionLifecycleService struct {
	pubSub   *gochannel.GoChannel
	sessions SessionDeleter
	grace    time.Duration
	logger   logger.ILogger

	mu      sync.Mutex
	lastSeq map[string]uint64
	pending map[string]*time.Timer
}

func NewSessionLifecycleService(pubSub *gochannel.GoChannel, sessions SessionDeleter, grace time.Duration, log logger.ILogger) *SessionLifecycleService {
	return &SessionLifecycleService{
		pubSub:   pubSub,
		sessions: sessions,
		grace:    grace,
		logger:   log,
		lastSeq:  make(map[string]uint64),
		pending:  make(map[string]*time.Timer),
	}
}

// PublishLifecycle implements websocket.LifecyclePublisher.
func (s *SessionLifecycleService) PublishLifecycle(evt events.LifecycleEvent) {
	payload, err := evt.Marshal()
	if err != nil {
		s.logger.Error("SessionLifecycle", "Failed to encode lifecycle event", map[string]interface{}{"error": err})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pubSub.Publish(events.TopicSessionLifecycle, msg); err != nil {
		s.logger.Error("SessionLifecycle", "Failed to publish lifecycle event", map[string]interface{}{"error": err, "session_id": evt.SessionID})
	}
}

// Consume subscribes to the lifecycle topic. It returns once subscribed;
// messages are processed until ctx is done.
func (s *SessionLifecycleService) Consume(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, events.TopicSessionLifecycle)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(msg)
		}
	}()
	return nil
}

func (s *SessionLifecycleService) processMessage(msg *message.Message) {
	// Ack regardless; a malformed notice will not get better on redelivery.
	defer msg.Ack()

	evt, err := events.UnmarshalLifecycle(msg.Payload)
	if err != nil {
		s.logger.Warn("SessionLifecycle", "Dropping malformed lifecycle event", map[string]interface{}{"error": err.Error()})
		return
	}
	s.handle(evt)
}

func (s *SessionLifecycleService) handle(evt events.LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Seq < s.lastSeq[evt.SessionID] {
		return
	}
	s.lastSeq[evt.SessionID] = evt.Seq

	if t, ok := s.pending[evt.SessionID]; ok {
		t.Stop()
		delete(s.pending, evt.SessionID)
	}

	details := map[string]interface{}{
		"session_id":  evt.SessionID,
		"user_id":     evt.UserID,
		"client_type": evt.ClientType,
	}

	switch evt.Type {
	case events.SessionConnected:
		s.logger.Info("SessionLifecycle", "Session connected", details)

	case events.SessionDisconnected:
		s.logger.Info("SessionLifecycle", "Session disconnected", details)
		if s.grace <= 0 {
			s.expireLocked(evt.SessionID)
			return
		}
		id := evt.SessionID
		var timer *time.Timer
		timer = time.AfterFunc(s.grace, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.pending[id] == timer {
				delete(s.pending, id)
				s.expireLocked(id)
			}
		})
		s.pending[id] = timer
	}
}

func (s *SessionLifecycleService) expireLocked(sessionID string) {
	s.sessions.Delete(sessionID)
	delete(s.lastSeq, sessionID)
	s.logger.Info("SessionLifecycle", "Session state released", map[string]interface{}{"session_id": sessionID})
}

// Pending reports how many sessions are waiting out their grace period.
func (s *SessionLifecycleService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending expiry.
func (s *SessionLifecycleService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
