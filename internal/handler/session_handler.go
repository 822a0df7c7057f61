package handler

import (
	"encoding/json"
	"errors"

	"chat-session-be/internal/connctx"
	"chat-session-be/internal/datalayer"
	"chat-session-be/internal/model"
	"chat-session-be/internal/pkg/logger"
	"chat-session-be/internal/pkg/serverutils"
	"chat-session-be/internal/service"
	internalWS "chat-session-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const defaultClientType = "webapp"

type SessionHandler struct {
	hub         *internalWS.Hub
	modeService *service.ModeService
	resolver    *datalayer.Resolver
	jwtSecret   string
	logger      logger.ILogger
}

func NewSessionHandler(hub *internalWS.Hub, modeService *service.ModeService, resolver *datalayer.Resolver, jwtSecret string, log logger.ILogger) *SessionHandler {
	return &SessionHandler{
		hub:         hub,
		modeService: modeService,
		resolver:    resolver,
		jwtSecret:   jwtSecret,
		logger:      log,
	}
}

func (h *SessionHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/health", h.Health)
	r.Get("/ws", h.ServeWs)

	s := r.Group("/sessions")
	s.Get("/:id/mode", h.GetMode)
	s.Put("/:id/mode", h.SetMode)
	s.Post("/:id/mathpractice", h.EnableMathPractice)

	r.Post("/broadcast", serverutils.JwtMiddleware(h.jwtSecret), h.Broadcast)
}

// ServeWs authenticates the handshake, builds the session and upgrades.
func (h *SessionHandler) ServeWs(c *fiber.Ctx) error {
	session, err := h.sessionFromHandshake(c)
	if err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			details := map[string]interface{}{"session_id": session.ID(), "client_type": session.Snapshot().ClientType}
			h.logger.Info("SessionHandler", "Starting WebSocket session", details)
			internalWS.ServeWs(h.hub, conn, session)
			h.logger.Info("SessionHandler", "WebSocket session ended", details)
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *SessionHandler) sessionFromHandshake(c *fiber.Ctx) (*connctx.Session, error) {
	// Anonymous sessions are allowed; a token that is present must be valid.
	var user *model.User
	if tokenStr := serverutils.BearerToken(c); tokenStr != "" {
		u, err := serverutils.ParseUserToken(tokenStr, h.jwtSecret)
		if err != nil {
			h.logger.Warn("SessionHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}
		user = u
	}

	// A client may resume its session by id to recover state after a drop.
	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid session_id")
	}

	env := map[string]string{}
	if raw := c.Query("env"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid env")
		}
	}

	settings := map[string]interface{}{}
	if raw := c.Query("chat_settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid chat_settings")
		}
	}

	return connctx.NewSession(connctx.Options{
		ID:           sessionID,
		Transport:    connctx.TransportWebSocket,
		Env:          env,
		ChatSettings: settings,
		User:         user,
		ChatProfile:  c.Query("chat_profile"),
		HTTPReferer:  c.Get(fiber.HeaderReferer),
		ClientType:   c.Query("client_type", defaultClientType),
		Languages:    c.Get(fiber.HeaderAcceptLanguage),
	}), nil
}

// Health reports liveness and whether a data layer is configured.
func (h *SessionHandler) Health(c *fiber.Ctx) error {
	layer, err := h.resolver.Resolve()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"data_layer": layer != nil,
		"sessions":   h.hub.Count(),
	})
}

func (h *SessionHandler) GetMode(c *fiber.Ctx) error {
	mode, set, err := h.modeService.GetMode(c.Params("id"))
	if err != nil {
		return modeError(err)
	}
	if !set {
		return c.JSON(fiber.Map{"mode": nil})
	}
	return c.JSON(fiber.Map{"mode": mode})
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,max=64,alphanum"`
}

func (h *SessionHandler) SetMode(c *fiber.Ctx) error {
	var req setModeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	local, err := h.modeService.SetMode(c.UserContext(), c.Params("id"), req.Mode)
	if err != nil {
		return modeError(err)
	}
	return modeAccepted(c, local, req.Mode)
}

func (h *SessionHandler) EnableMathPractice(c *fiber.Ctx) error {
	local, err := h.modeService.EnableMathPractice(c.UserContext(), c.Params("id"))
	if err != nil {
		return modeError(err)
	}
	return modeAccepted(c, local, "mathpractice")
}

type broadcastRequest struct {
	Event string      `json:"event" validate:"required,max=64"`
	Data  interface{} `json:"data"`
}

// Broadcast emits an event to every connected session on every instance.
func (h *SessionHandler) Broadcast(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := h.hub.Broadcast(req.Event, req.Data); err != nil {
		return err
	}
	if u, ok := c.Locals("user").(*model.User); ok {
		h.logger.Info("SessionHandler", "Broadcast sent", map[string]interface{}{"event": req.Event, "user_id": u.Identifier})
	}
	return c.JSON(serverutils.SuccessResponse[any]("Broadcast sent", nil))
}

// modeAccepted answers 200 for a local session and 202 when the command was
// forwarded to another instance.
func modeAccepted(c *fiber.Ctx, local bool, mode string) error {
	status := fiber.StatusOK
	if !local {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"mode": mode, "forwarded": !local})
}

func modeError(err error) error {
	if errors.Is(err, service.ErrSessionNotConnected) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return err
}
