package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"chat-session-be/internal/connctx"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: payload})
}

// Client is one live connection, i.e. one session.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	Session *connctx.Session

	// Buffered channel of outbound frames.
	Send chan []byte

	mu     sync.RWMutex
	closed bool

	// dropping is set once the client has been handed back for falling behind.
	dropping atomic.Bool
}

func NewClient(hub *Hub, conn *websocket.Conn, session *connctx.Session) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		Session: session,
		Send:    make(chan []byte, sendBuffer),
	}
}

// Context binds the client's session to the client as emitter.
func (c *Client) Context() *connctx.Context {
	return connctx.New(c.Session, c)
}

// Emit queues an event for the client. Frames are dropped when the buffer
// is full or the connection has gone.
func (c *Client) Emit(event string, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		c.Hub.logger.Error("Client", "Failed to encode event", map[string]interface{}{
			"session_id": c.Session.ID(),
			"event":      event,
			"error":      err,
		})
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}

	select {
	case c.Send <- data:
		return true
	default:
		// A client that cannot keep up is disconnected. Unregister runs in its
		// own goroutine because the hub takes this client's lock to close it.
		if c.dropping.CompareAndSwap(false, true) {
			c.Hub.logger.Warn("Client", "Send buffer full, dropping client", map[string]interface{}{"session_id": c.Session.ID()})
			go c.Hub.Unregister(c)
		}
		return false
	}
}

// close is called by the hub exactly once per registered client.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// readPump pumps frames from the websocket connection to the hub's handler.
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"session_id": c.Session.ID(), "error": err.Error()})
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.Hub.logger.Warn("Client", "Ignoring malformed frame", map[string]interface{}{"session_id": c.Session.ID()})
			continue
		}
		c.Hub.dispatch(c, env)
	}
}

// writePump pumps frames from the send buffer to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame; clients parse each frame as a single JSON value.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
