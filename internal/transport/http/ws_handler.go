package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/privchat/privchat-server/internal/auth"
	"github.com/privchat/privchat-server/internal/config"
	"github.com/privchat/privchat-server/internal/core"
	"github.com/privchat/privchat-server/internal/proto"
	"github.com/privchat/privchat-server/internal/store"
)

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	cfg            config.Config
	authService    *auth.Service
	store          store.Store
	engine         *core.Engine
	registry       *core.Registry
	notifyRegistry *core.NotifyRegistry
	log            *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(
	cfg config.Config,
	authService *auth.Service,
	st store.Store,
	engine *core.Engine,
	registry *core.Registry,
	notifyRegistry *core.NotifyRegistry,
	logger *zerolog.Logger,
) *WSHandler {
	return &WSHandler{
		cfg:            cfg,
		authService:    authService,
		store:          st,
		engine:         engine,
		registry:       registry,
		notifyRegistry: notifyRegistry,
		log:            logger,
	}
}

// Conversation serves the pairwise messaging channel.
// GET /ws/private/:peer_id?token=...
func (h *WSHandler) Conversation(c *gin.Context) {
	ctx := c.Request.Context()

	claims, err := h.authService.ValidateToken(c.Query("token"))
	if err != nil {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}

	peerID, err := strconv.ParseInt(c.Param("peer_id"), 10, 64)
	if err != nil || peerID <= 0 {
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "invalid peer id"})
		return
	}

	user, err := h.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "unknown user"})
		return
	}
	if _, err := h.store.GetUserByID(ctx, peerID); err != nil {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "recipient not found"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	logger := h.log.With().Str("conn_id", uuid.NewString()).Logger()
	session := core.NewConversationSession(
		*user, peerID, &wsChannel{conn: conn},
		h.engine, h.registry, h.store, &logger,
	)
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("start conversation session")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	err = h.readLoop(ctx, conn, session)
	session.Close()

	status, reason := closeStatus(err)
	if status == websocket.StatusInternalError {
		logger.Warn().Err(err).Msg("ws connection closed with error")
	}
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.ConversationSession) error {
	limiter := newFrameLimiter(h.cfg.WSRateLimit)
	limiter.startReset(ctx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			if err := wsjson.Write(ctx, conn, proto.Status{
				Message: "Rate limit exceeded",
				Code:    core.ErrCodeBadRequest,
			}); err != nil {
				return err
			}
			continue
		}

		if err := session.HandleFrame(ctx, data); err != nil {
			return err
		}
	}
}

// closeStatus maps a read-loop error to the close frame to send. A clean
// client disconnect is an expected lifecycle event, not an error.
func closeStatus(err error) (websocket.StatusCode, string) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	if s := websocket.CloseStatus(err); s != -1 {
		if s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			return websocket.StatusNormalClosure, "closing"
		}
		return s, "closing"
	}
	return websocket.StatusInternalError, err.Error()
}

// Notifications serves the per-user liveness channel.
// GET /ws/notifications?token=...
func (h *WSHandler) Notifications(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// Token is checked after the handshake so the client observes a
	// policy-violation close instead of a failed upgrade.
	claims, err := h.authService.ValidateToken(c.Query("token"))
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	ctx := conn.CloseRead(c.Request.Context())

	ch := &wsChannel{conn: conn}
	h.notifyRegistry.Connect(claims.UserID, ch)
	defer h.notifyRegistry.Disconnect(claims.UserID)

	session := core.NewNotificationSession(claims.UserID, ch, h.store, h.cfg.NotifyInterval, h.log)

	err = session.Run(ctx)
	if errors.Is(err, context.Canceled) {
		conn.Close(websocket.StatusNormalClosure, "closing")
		return
	}

	h.log.Warn().Err(err).Int64("user_id", claims.UserID).Msg("notification session ended")
	conn.Close(websocket.StatusInternalError, "internal error")
}
