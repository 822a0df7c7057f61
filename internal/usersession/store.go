// Package usersession stores per-connection state that survives across
// request/response turns.
//
// Every operation takes the connection it runs under. Without one, reads
// return the caller's default and writes are dropped.
package usersession

import (
	"errors"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/model"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/pkg/store"
)

// Keys mirrored from the connection on every Get.
const (
	KeyID           = "id"
	KeyEnv          = "env"
	KeyChatSettings = "chat_settings"
	KeyUser         = "user"
	KeyChatProfile  = "chat_profile"
	KeyHTTPReferer  = "http_referer"
	KeyClientType   = "client_type"
	KeyLanguages    = "languages"
)

// ErrReservedKey is returned when application code writes a key that is
// refreshed from the connection and would be overwritten on the next read.
var ErrReservedKey = errors.New("usersession: key is reserved")

var reserved = map[string]struct{}{
	KeyID:           {},
	KeyEnv:          {},
	KeyChatSettings: {},
	KeyChatProfile:  {},
	KeyHTTPReferer:  {},
	KeyClientType:   {},
	KeyLanguages:    {},
}

// IsReserved reports whether key is refreshed from the connection.
// KeyUser is writable and therefore not reserved.
func IsReserved(key string) bool {
	_, ok := reserved[key]
	return ok
}

// Registry owns the records; memory.SessionRepository satisfies it.
type Registry interface {
	GetOrCreate(sessionID string) *store.Record
}

type Store struct {
	registry Registry
	logger   logger.ILogger
}

func NewStore(registry Registry, log logger.ILogger) *Store {
	return &Store{registry: registry, logger: log}
}

// Get returns the value stored under key for the current session, or def.
func (s *Store) Get(cc *connctx.Context, key string, def interface{}) interface{} {
	if !cc.Active() {
		return def
	}

	snap := cc.Session.Snapshot()
	rec := s.registry.GetOrCreate(snap.ID)

	value := def
	rec.Update(func(values map[string]interface{}) {
		values[KeyID] = snap.ID
		values[KeyEnv] = snap.Env
		values[KeyChatSettings] = snap.ChatSettings
		if snap.User != nil {
			values[KeyUser] = snap.User
		} else {
			values[KeyUser] = nil
		}
		values[KeyChatProfile] = snap.ChatProfile
		values[KeyHTTPReferer] = snap.HTTPReferer
		values[KeyClientType] = snap.ClientType
		if snap.Streaming {
			values[KeyLanguages] = snap.Languages
		}

		if v, ok := values[key]; ok {
			value = v
		}
	})
	return value
}

// Set stores value under key for the current session.
// Writing a *model.User under KeyUser also updates the connection's user.
func (s *Store) Set(cc *connctx.Context, key string, value interface{}) error {
	if !cc.Active() {
		return nil
	}
	if IsReserved(key) {
		s.logger.Warn("UserSession", "Rejected write to reserved key", map[string]interface{}{
			"session_id": cc.Session.ID(),
			"key":        key,
		})
		return ErrReservedKey
	}

	rec := s.registry.GetOrCreate(cc.Session.ID())
	rec.Update(func(values map[string]interface{}) {
		values[key] = value
	})

	if key == KeyUser {
		if u, ok := value.(*model.User); ok {
			cc.Session.SetUser(u)
		} else {
			s.logger.Warn("UserSession", "User key written with non-user value", map[string]interface{}{
				"session_id": cc.Session.ID(),
			})
		}
	}
	return nil
}

// Lookup is Get with a typed result. A stored value of another type yields def.
func Lookup[T any](s *Store, cc *connctx.Context, key string, def T) T {
	if v, ok := s.Get(cc, key, def).(T); ok {
		return v
	}
	return def
}
