package usersession

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/model"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *memory.SessionRepository) {
	repo := memory.NewSessionRepository(0, 0)
	return NewStore(repo, logger.NewNopLogger()), repo
}

func newConn(id string, opts ...func(*connctx.Options)) *connctx.Context {
	o := connctx.Options{ID: id, ClientType: "webapp"}
	for _, fn := range opts {
		fn(&o)
	}
	return connctx.New(connctx.NewSession(o), nil)
}

func TestActiveSessionOutlivesIdleTTL(t *testing.T) {
	repo := memory.NewSessionRepository(50*time.Millisecond, 10*time.Millisecond)
	s := NewStore(repo, logger.NewNopLogger())
	cc := newConn("busy")

	require.NoError(t, s.Set(cc, "k", "v"))
	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, "v", s.Get(cc, "k", nil))
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "v", s.Get(cc, "k", "default"))
}

func TestSetThenGet(t *testing.T) {
	s, _ := newTestStore()
	cc := newConn("a")

	require.NoError(t, s.Set(cc, "counter", 3))

	assert.Equal(t, 3, s.Get(cc, "counter", 0))
}

func TestSessionsAreIsolated(t *testing.T) {
	s, _ := newTestStore()
	a := newConn("a")
	b := newConn("b")

	require.NoError(t, s.Set(a, "k", "from-a"))

	assert.Equal(t, "default", s.Get(b, "k", "default"))
	assert.Equal(t, "from-a", s.Get(a, "k", "default"))
}

func TestGetUnseenSessionCreatesRecord(t *testing.T) {
	s, repo := newTestStore()
	cc := newConn("fresh")

	got := s.Get(cc, "missing", "fallback")

	assert.Equal(t, "fallback", got)
	_, found := repo.Get("fresh")
	assert.True(t, found)
}

func TestNoActiveContext(t *testing.T) {
	s, repo := newTestStore()

	var nilCtx *connctx.Context
	assert.NotPanics(t, func() {
		assert.Equal(t, "d", s.Get(nilCtx, "k", "d"))
		assert.NoError(t, s.Set(nilCtx, "k", "v"))
		assert.Equal(t, "d", s.Get(connctx.New(nil, nil), "k", "d"))
	})
	assert.Equal(t, 0, repo.Count())
}

func TestGetRefreshesReservedKeys(t *testing.T) {
	s, _ := newTestStore()
	cc := newConn("r", func(o *connctx.Options) {
		o.Env = map[string]string{"TZ": "UTC"}
		o.ChatProfile = "tutor"
		o.HTTPReferer = "https://example.com/page"
		o.Languages = "en-US,en;q=0.9"
	})

	assert.Equal(t, "r", s.Get(cc, KeyID, nil))
	assert.Equal(t, map[string]string{"TZ": "UTC"}, s.Get(cc, KeyEnv, nil))
	assert.Equal(t, "tutor", s.Get(cc, KeyChatProfile, nil))
	assert.Equal(t, "https://example.com/page", s.Get(cc, KeyHTTPReferer, nil))
	assert.Equal(t, "webapp", s.Get(cc, KeyClientType, nil))
	assert.Equal(t, "en-US,en;q=0.9", s.Get(cc, KeyLanguages, nil))
	assert.Nil(t, s.Get(cc, KeyUser, "none"))

	cc.Session.SetChatSettings(map[string]interface{}{"temperature": 0.2})
	assert.Equal(t, map[string]interface{}{"temperature": 0.2}, s.Get(cc, KeyChatSettings, nil))
}

func TestLanguagesOnlyForStreamingTransport(t *testing.T) {
	s, _ := newTestStore()
	cc := newConn("h", func(o *connctx.Options) {
		o.Transport = connctx.TransportHTTP
		o.Languages = "fr"
	})

	assert.Equal(t, "unset", s.Get(cc, KeyLanguages, "unset"))
}

func TestSetReservedKeyRejected(t *testing.T) {
	s, _ := newTestStore()
	cc := newConn("x")

	for _, key := range []string{KeyID, KeyEnv, KeyChatSettings, KeyChatProfile, KeyHTTPReferer, KeyClientType, KeyLanguages} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, s.Set(cc, key, "override"), ErrReservedKey)
		})
	}
	assert.Equal(t, "x", s.Get(cc, KeyID, nil))
}

func TestSetUserSyncsContext(t *testing.T) {
	s, _ := newTestStore()
	cc := newConn("u")
	u := &model.User{Identifier: "alice"}

	require.NoError(t, s.Set(cc, KeyUser, u))

	assert.Same(t, u, cc.Session.User())
	assert.Same(t, u, s.Get(cc, KeyUser, nil))
}

func TestSetOtherKeyLeavesContextUntouched(t *testing.T) {
	s, _ := newTestStore()
	original := &model.User{Identifier: "bob"}
	cc := newConn("u", func(o *connctx.Options) { o.User = original })

	require.NoError(t, s.Set(cc, "profile_user", &model.User{Identifier: "mallory"}))

	assert.Same(t, original, cc.Session.User())
}

func TestSetUserWithNonUserValue(t *testing.T) {
	s, _ := newTestStore()
	original := &model.User{Identifier: "bob"}
	cc := newConn("u", func(o *connctx.Options) { o.User = original })

	require.NoError(t, s.Set(cc, KeyUser, "not-a-user"))

	assert.Same(t, original, cc.Session.User())
}

func TestLookup(t *testing.T) {
	s, _ := newTestStore()
	cc := newConn("l")
	require.NoError(t, s.Set(cc, "n", 7))
	require.NoError(t, s.Set(cc, "s", "text"))

	assert.Equal(t, 7, Lookup(s, cc, "n", 0))
	assert.Equal(t, 0, Lookup(s, cc, "s", 0))
	assert.Equal(t, "text", Lookup(s, cc, "s", ""))
	assert.Equal(t, "x", Lookup(s, cc, "absent", "x"))
}

func TestConcurrentSessions(t *testing.T) {
	s, repo := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		cc := newConn(fmt.Sprintf("s-%d", i))
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.Set(cc, "owner", i)
				_ = s.Get(cc, "owner", -1)
			}(i)
		}
	}
	wg.Wait()

	assert.Equal(t, 20, repo.Count())
	for i := 0; i < 20; i++ {
		cc := newConn(fmt.Sprintf("s-%d", i))
		assert.Equal(t, i, s.Get(cc, "owner", -1))
	}
}
