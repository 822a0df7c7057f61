package websocket

import (
	"chat-session-be/internal/connctx"

	"github.com/gofiber/websocket/v2"
)

// ServeWs runs a connection until the peer goes away.
func ServeWs(hub *Hub, conn *websocket.Conn, session *connctx.Session) {
	client := NewClient(hub, conn, session)
	client.Hub.Register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
