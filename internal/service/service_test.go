package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/copilot"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/internal/repository/memory"
	"chat-session-be/internal/usersession"
	"chat-session-be/pkg/events"
	pktNats "chat-session-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, _ := json.Marshal(payload)
	r.events = append(r.events, event+" "+string(data))
}

func (r *recordingEmitter) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeLocator map[string]*connctx.Context

func (f fakeLocator) Lookup(id string) (*connctx.Context, bool) {
	cc, ok := f[id]
	return cc, ok
}

type fakePublisher struct {
	published []events.Event
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, e)
	return nil
}

type fakeSubscriber struct {
	subject string
	handler pktNats.EventHandler
}

func (f *fakeSubscriber) Subscribe(subject string, h pktNats.EventHandler) error {
	f.subject, f.handler = subject, h
	return nil
}

type fixture struct {
	repo        *memory.SessionRepository
	broadcaster *copilot.Broadcaster
	emitter     *recordingEmitter
	cc          *connctx.Context
}

func newFixture() *fixture {
	log := logger.NewNopLogger()
	repo := memory.NewSessionRepository(0, 0)
	em := &recordingEmitter{}
	return &fixture{
		repo:        repo,
		broadcaster: copilot.NewBroadcaster(usersession.NewStore(repo, log), log),
		emitter:     em,
		cc:          connctx.New(connctx.NewSession(connctx.Options{ID: "s1"}), em),
	}
}

func TestClientEventGetModeReplays(t *testing.T) {
	f := newFixture()
	svc := NewClientEventService(f.broadcaster, logger.NewNopLogger())

	svc.HandleClientEvent(f.cc, copilot.EventGetMode, nil)
	assert.Empty(t, f.emitter.all(), "no mode stored yet")

	f.broadcaster.EnableMathPractice(f.cc)
	svc.HandleClientEvent(f.cc, copilot.EventGetMode, nil)

	assert.Equal(t, []string{
		`copilot_mode {"mode":"mathpractice"}`,
		`copilot_mode {"mode":"mathpractice"}`,
	}, f.emitter.all())
}

func TestClientEventChatSettingsChange(t *testing.T) {
	f := newFixture()
	svc := NewClientEventService(f.broadcaster, logger.NewNopLogger())

	svc.HandleClientEvent(f.cc, EventChatSettingsChange, json.RawMessage(`{"model":"small"}`))
	assert.Equal(t, map[string]interface{}{"model": "small"}, f.cc.Session.Snapshot().ChatSettings)

	svc.HandleClientEvent(f.cc, EventChatSettingsChange, json.RawMessage(`not json`))
	assert.Equal(t, map[string]interface{}{"model": "small"}, f.cc.Session.Snapshot().ChatSettings)
}

func TestModeServiceLocalSession(t *testing.T) {
	f := newFixture()
	pub := &fakePublisher{}
	svc := NewModeService(f.broadcaster, fakeLocator{"s1": f.cc}, pub, nil, logger.NewNopLogger())

	local, err := svc.SetMode(context.Background(), "s1", "voice")
	require.NoError(t, err)
	assert.True(t, local)
	assert.Empty(t, pub.published)

	mode, set, err := svc.GetMode("s1")
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, "voice", mode)
}

func TestModeServiceForwardsRemoteSession(t *testing.T) {
	f := newFixture()
	pub := &fakePublisher{}
	svc := NewModeService(f.broadcaster, fakeLocator{}, pub, nil, logger.NewNopLogger())

	local, err := svc.EnableMathPractice(context.Background(), "elsewhere")
	require.NoError(t, err)
	assert.False(t, local)
	require.Len(t, pub.published, 1)
	assert.Equal(t, events.SubjectModeCommand, pub.published[0].EventType())
	assert.Equal(t, "elsewhere", pub.published[0].Payload()["session_id"])
	assert.Equal(t, copilot.ModeMathPractice, pub.published[0].Payload()["mode"])

	_, _, err = svc.GetMode("elsewhere")
	assert.ErrorIs(t, err, ErrSessionNotConnected)
}

func TestModeServiceWithoutNATS(t *testing.T) {
	f := newFixture()
	svc := NewModeService(f.broadcaster, fakeLocator{}, nil, nil, logger.NewNopLogger())

	_, err := svc.SetMode(context.Background(), "missing", "voice")
	assert.ErrorIs(t, err, ErrSessionNotConnected)
	assert.NoError(t, svc.Start())
}

func TestModeServicePublishError(t *testing.T) {
	f := newFixture()
	boom := errors.New("nats down")
	svc := NewModeService(f.broadcaster, fakeLocator{}, &fakePublisher{err: boom}, nil, logger.NewNopLogger())

	_, err := svc.SetMode(context.Background(), "missing", "voice")
	assert.ErrorIs(t, err, boom)
}

func TestModeServiceHandlesCommands(t *testing.T) {
	f := newFixture()
	sub := &fakeSubscriber{}
	svc := NewModeService(f.broadcaster, fakeLocator{"s1": f.cc}, nil, sub, logger.NewNopLogger())
	require.NoError(t, svc.Start())
	require.Equal(t, events.SubjectModeCommand, sub.subject)

	require.NoError(t, sub.handler(context.Background(), events.NewModeCommand("s1", "mathpractice")))
	require.NoError(t, sub.handler(context.Background(), events.NewModeCommand("other", "voice")))
	assert.Error(t, sub.handler(context.Background(), events.BaseEvent{Data: map[string]interface{}{}}))

	assert.Equal(t, []string{`copilot_mode {"mode":"mathpractice"}`}, f.emitter.all())
}

func newLifecycle(t *testing.T, repo *memory.SessionRepository, grace time.Duration) *SessionLifecycleService {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	svc := NewSessionLifecycleService(pubSub, repo, grace, logger.NewNopLogger())
	t.Cleanup(svc.Stop)
	return svc
}

func TestLifecycleReleasesStateAfterGrace(t *testing.T) {
	repo := memory.NewSessionRepository(0, 0)
	repo.GetOrCreate("s1")
	svc := newLifecycle(t, repo, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Consume(ctx))

	svc.PublishLifecycle(events.LifecycleEvent{Seq: 1, Type: events.SessionConnected, SessionID: "s1"})
	svc.PublishLifecycle(events.LifecycleEvent{Seq: 2, Type: events.SessionDisconnected, SessionID: "s1"})

	require.Eventually(t, func() bool {
		_, found := repo.Get("s1")
		return !found
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, svc.Pending())
}

func TestLifecycleReconnectCancelsExpiry(t *testing.T) {
	repo := memory.NewSessionRepository(0, 0)
	repo.GetOrCreate("s1")
	svc := newLifecycle(t, repo, 30*time.Millisecond)

	svc.handle(events.LifecycleEvent{Seq: 1, Type: events.SessionDisconnected, SessionID: "s1"})
	assert.Equal(t, 1, svc.Pending())
	svc.handle(events.LifecycleEvent{Seq: 2, Type: events.SessionConnected, SessionID: "s1"})
	assert.Equal(t, 0, svc.Pending())

	time.Sleep(60 * time.Millisecond)
	_, found := repo.Get("s1")
	assert.True(t, found)
}

func TestLifecycleIgnoresStaleEvents(t *testing.T) {
	repo := memory.NewSessionRepository(0, 0)
	repo.GetOrCreate("s1")
	svc := newLifecycle(t, repo, 0)

	// The reconnect is delivered before the older disconnect.
	svc.handle(events.LifecycleEvent{Seq: 3, Type: events.SessionConnected, SessionID: "s1"})
	svc.handle(events.LifecycleEvent{Seq: 2, Type: events.SessionDisconnected, SessionID: "s1"})

	_, found := repo.Get("s1")
	assert.True(t, found)
}

func TestLifecycleZeroGraceReleasesImmediately(t *testing.T) {
	repo := memory.NewSessionRepository(0, 0)
	repo.GetOrCreate("s1")
	svc := newLifecycle(t, repo, 0)

	svc.handle(events.LifecycleEvent{Seq: 1, Type: events.SessionDisconnected, SessionID: "s1"})

	_, found := repo.Get("s1")
	assert.False(t, found)
}
