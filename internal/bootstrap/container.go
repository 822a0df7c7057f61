package bootstrap

import (
	"context"
	"time"

	"chat-session-be/internal/config"
	"chat-session-be/internal/copilot"
	"chat-session-be/internal/datalayer"
	"chat-session-be/internal/handler"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/internal/repository/memory"
	"chat-session-be/internal/service"
	"chat-session-be/internal/usersession"
	"chat-session-be/internal/websocket"
	pktNats "chat-session-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	Logger logger.ILogger

	SessionHandler *handler.SessionHandler

	// Background services, started by main.go
	WebSocketHub     *websocket.Hub
	LifecycleService *service.SessionLifecycleService
	ModeService      *service.ModeService

	Resolver *datalayer.Resolver

	closers []func()
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Loggers
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)

	// 2. Session state
	sessionRepo := memory.NewSessionRepository(cfg.Session.TTL, cfg.Session.CleanupInterval)
	store := usersession.NewStore(sessionRepo, sysLogger)
	broadcaster := copilot.NewBroadcaster(store, sysLogger)

	// 3. Data layer
	var resolverOpts []datalayer.Option
	if cfg.DataLayer.DSN != "" {
		resolverOpts = append(resolverOpts, datalayer.WithFactory(datalayer.NewGormFactory(cfg.DataLayer.DSN)))
	}
	resolver := datalayer.NewResolver(sysLogger, resolverOpts...)

	// 4. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	lifecycle := service.NewSessionLifecycleService(pubSub, sessionRepo, cfg.Session.ReconnectGrace, sysLogger)

	c := &Container{Logger: sysLogger, Resolver: resolver, LifecycleService: lifecycle}
	c.closers = append(c.closers, lifecycle.Stop, func() { _ = pubSub.Close() })

	// 5. Infrastructure
	rdb := connectRedis(cfg.App.RedisURL, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// Typed nils must not reach the services, so the interfaces stay nil on failure.
	var (
		publisher  service.EventPublisher
		subscriber service.EventSubscriber
	)
	if natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL); err != nil {
		sysLogger.Warn("Bootstrap", "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
	} else {
		publisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}
	if natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL); err != nil {
		sysLogger.Warn("Bootstrap", "Failed to connect to NATS Subscriber", map[string]interface{}{"error": err.Error()})
	} else {
		subscriber = natsSub
		c.closers = append(c.closers, natsSub.Close)
	}

	// 6. Transport and services
	clientEvents := service.NewClientEventService(broadcaster, wsLogger)
	hub := websocket.NewHub(rdb, wsLogger, lifecycle, clientEvents)
	modeService := service.NewModeService(broadcaster, hub, publisher, subscriber, sysLogger)

	c.WebSocketHub = hub
	c.ModeService = modeService
	c.SessionHandler = handler.NewSessionHandler(hub, modeService, resolver, cfg.Auth.JWTSecret, wsLogger)
	return c
}

// connectRedis returns nil when redis is unreachable; broadcasts then stay local.
func connectRedis(url string, log logger.ILogger) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Failed to connect to Redis, broadcasts stay local", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}

// Start runs the background services until ctx is done.
func (c *Container) Start(ctx context.Context) error {
	if err := c.LifecycleService.Consume(ctx); err != nil {
		return err
	}
	go c.WebSocketHub.Run(ctx)
	return c.ModeService.Start()
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	if err := c.Resolver.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close data layer", map[string]interface{}{"error": err.Error()})
	}
	_ = c.Logger.Sync()
}
