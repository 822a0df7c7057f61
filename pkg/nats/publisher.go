package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-session-be/pkg/events"

	"github.com/nats-io/nats.go"
)

// Publisher handles sending events to the NATS bus.
type Publisher struct {
	nc *nats.Conn
}

func connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func NewPublisher(url string) (*Publisher, error) {
	nc, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// Publish sends the event payload on the subject named by its type.
// Core NATS delivers it to every subscribed instance.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if err := p.nc.Publish(event.EventType(), data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", event.EventType(), err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
