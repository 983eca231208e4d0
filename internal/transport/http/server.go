package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/privchat/privchat-server/internal/auth"
	"github.com/privchat/privchat-server/internal/config"
	"github.com/privchat/privchat-server/internal/core"
	"github.com/privchat/privchat-server/internal/store"
)

// NewServer builds the HTTP server: REST endpoints plus the two WebSocket
// channels (pairwise conversations and per-user notifications).
func NewServer(
	cfg config.Config,
	authService *auth.Service,
	st store.Store,
	engine *core.Engine,
	registry *core.Registry,
	notifyRegistry *core.NotifyRegistry,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.GET("/users/search", userHandlers.SearchUsers)

	wsHandler := NewWSHandler(cfg, authService, st, engine, registry, notifyRegistry, logger)
	ws := router.Group("/ws")
	ws.GET("/private/:peer_id", wsHandler.Conversation)
	ws.GET("/notifications", wsHandler.Notifications)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
