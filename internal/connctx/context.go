// Package connctx describes the live connection a unit of work runs under.
//
// A *Context is passed explicitly to session-scoped operations. A nil Context
// means the caller is not serving a connection (a background job, a startup
// hook) and session-scoped operations degrade to defaults and no-ops.
package connctx

import (
	"sync"

	"chat-session-be/internal/model"
)

// Transport names how the client is attached.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportHTTP      Transport = "http"
)

// Emitter pushes a named event to the connected client. Delivery is
// fire-and-forget; implementations own buffering and failure handling.
type Emitter interface {
	Emit(event string, payload interface{})
}

// Context is the handle to the connection currently being served.
type Context struct {
	Session *Session
	Emitter Emitter
}

// New binds a session and an optional emitter.
func New(session *Session, emitter Emitter) *Context {
	return &Context{Session: session, Emitter: emitter}
}

// Active reports whether c refers to a live session.
func (c *Context) Active() bool {
	return c != nil && c.Session != nil
}

// CanEmit reports whether events can be pushed to the client.
func (c *Context) CanEmit() bool {
	return c.Active() && c.Emitter != nil
}

// Options carries the handshake values used to build a Session.
type Options struct {
	ID           string
	Transport    Transport
	Env          map[string]string
	ChatSettings map[string]interface{}
	User         *model.User
	ChatProfile  string
	HTTPReferer  string
	ClientType   string
	Languages    string
}

// Session holds the ambient values of one connection. The identifier,
// environment, profile, referer, client type and languages are fixed at
// handshake; the user and chat settings may change during the session.
type Session struct {
	id          string
	transport   Transport
	env         map[string]string
	chatProfile string
	httpReferer string
	clientType  string
	languages   string

	mu           sync.RWMutex
	user         *model.User
	chatSettings map[string]interface{}
}

// NewSession builds a session from handshake options.
func NewSession(opts Options) *Session {
	env := opts.Env
	if env == nil {
		env = map[string]string{}
	}
	settings := opts.ChatSettings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	transport := opts.Transport
	if transport == "" {
		transport = TransportWebSocket
	}

	return &Session{
		id:           opts.ID,
		transport:    transport,
		env:          env,
		chatProfile:  opts.ChatProfile,
		httpReferer:  opts.HTTPReferer,
		clientType:   opts.ClientType,
		languages:    opts.Languages,
		user:         opts.User,
		chatSettings: settings,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Transport() Transport { return s.transport }

// Streaming reports whether the session rides a persistent connection.
func (s *Session) Streaming() bool {
	return s.transport == TransportWebSocket
}

func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// SetChatSettings replaces the chat settings wholesale.
func (s *Session) SetChatSettings(settings map[string]interface{}) {
	if settings == nil {
		settings = map[string]interface{}{}
	}
	s.mu.Lock()
	s.chatSettings = settings
	s.mu.Unlock()
}

// Snapshot is a consistent read of every ambient value.
type Snapshot struct {
	ID           string
	Env          map[string]string
	ChatSettings map[string]interface{}
	User         *model.User
	ChatProfile  string
	HTTPReferer  string
	ClientType   string
	Languages    string
	Streaming    bool
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		ID:           s.id,
		Env:          s.env,
		ChatSettings: s.chatSettings,
		User:         s.user,
		ChatProfile:  s.chatProfile,
		HTTPReferer:  s.httpReferer,
		ClientType:   s.clientType,
		Languages:    s.languages,
		Streaming:    s.Streaming(),
	}
}
