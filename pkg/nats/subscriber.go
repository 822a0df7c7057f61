package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chat-session-be/pkg/events"

	"github.com/nats-io/nats.go"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewSubscriber(url string) (*Subscriber, error) {
	nc, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc}, nil
}

// Subscribe registers handler for subject. Every instance receives every
// message; handlers ignore what they do not own.
func (s *Subscriber) Subscribe(subject string, handler EventHandler) error {
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Printf("Error unmarshalling event data on %s: %v", msg.Subject, err)
			return
		}

		event := events.BaseEvent{
			Type:       msg.Subject,
			Data:       payload,
			OccurredAt: time.Now(),
		}
		if err := handler(context.Background(), event); err != nil {
			log.Printf("Handler failed for event %s: %v", msg.Subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	s.subs = append(s.subs, sub)
	log.Printf("Subscribed to %s", subject)
	return nil
}

func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
