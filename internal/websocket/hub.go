package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// EventHandler receives frames sent by clients.
type EventHandler interface {
	HandleClientEvent(cc *connctx.Context, event string, data json.RawMessage)
}

// LifecyclePublisher is told when sessions come and go.
type LifecyclePublisher interface {
	PublishLifecycle(evt events.LifecycleEvent)
}

type Hub struct {
	// Registered clients: session id -> client.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	// done is closed when Run returns.
	done chan struct{}

	mu sync.RWMutex

	// Redis connection for cross-instance broadcasts; optional.
	rdb        *redis.Client
	instanceID string

	// seq is only touched by the Run goroutine.
	seq uint64

	handler   EventHandler
	lifecycle LifecyclePublisher
	logger    logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger, lifecycle LifecyclePublisher, handler EventHandler) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		handler:    handler,
		lifecycle:  lifecycle,
		logger:     log,
	}
}

// Run serves register/unregister requests until ctx is done, then closes
// every remaining client. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			id := client.Session.ID()
			h.mu.Lock()
			previous, replaced := h.clients[id]
			h.clients[id] = client
			h.mu.Unlock()
			// A reconnect on the same session supersedes the old socket.
			if replaced && previous != client {
				previous.close()
			}
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": id, "replaced": replaced})
			h.publish(events.SessionConnected, client)

		case client := <-h.unregister:
			id := client.Session.ID()
			h.mu.Lock()
			current, ok := h.clients[id]
			owned := ok && current == client
			if owned {
				delete(h.clients, id)
			}
			h.mu.Unlock()
			client.close()
			if owned {
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"session_id": id})
				h.publish(events.SessionDisconnected, client)
			}
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	h.logger.Info("Hub", "Hub stopped", map[string]interface{}{"closed_clients": len(clients)})
}

func (h *Hub) publish(kind string, c *Client) {
	if h.lifecycle == nil {
		return
	}
	h.seq++
	evt := events.LifecycleEvent{
		Seq:        h.seq,
		Type:       kind,
		SessionID:  c.Session.ID(),
		ClientType: c.Session.Snapshot().ClientType,
		OccurredAt: time.Now(),
	}
	if u := c.Session.User(); u != nil {
		evt.UserID = u.Identifier
	}
	h.lifecycle.PublishLifecycle(evt)
}

// Register hands a client to the hub. Once the hub has stopped the client
// is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
	}
}

// Unregister removes a client and closes its send buffer. It does not block
// once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) dispatch(c *Client, env Envelope) {
	if h.handler == nil {
		return
	}
	h.handler.HandleClientEvent(c.Context(), env.Event, env.Data)
}

// Lookup returns the connection context of a locally connected session.
func (h *Hub) Lookup(sessionID string) (*connctx.Context, bool) {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return client.Context(), true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

// Broadcast sends an event to every connected client on every instance.
func (h *Hub) Broadcast(event string, payload interface{}) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.deliverAll(data)

	if h.rdb != nil {
		msg, err := json.Marshal(clusterMessage{Origin: h.instanceID, Message: data})
		if err != nil {
			return err
		}
		if err := h.rdb.Publish(context.Background(), clusterChannel, msg).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to publish broadcast to redis", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

func (h *Hub) deliverAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.enqueue(data)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg = m
		}

		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		// Already delivered locally by Broadcast.
		if payload.Origin == h.instanceID {
			continue
		}
		h.deliverAll(payload.Message)
	}
}
