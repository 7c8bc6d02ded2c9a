package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/core"
	"messenger/internal/store"
)

// NewServer builds the HTTP server: REST API under /api, websocket
// endpoints under /ws, health probe at /health.
func NewServer(
	cfg *config.Config,
	st store.Store,
	authService *auth.Service,
	registry *core.Registry,
	delivery *core.Delivery,
	receipts *core.Receipts,
	handshake *core.Handshake,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	chatHandlers := NewChatHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, delivery, receipts, logger)
	wsHandler := NewWSHandler(handshake, registry, delivery, cfg.SendBuffer, logger)

	engine.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	api := engine.Group("/api")
	{
		api.POST("/auth/register", apiHandlers.Register)
		api.POST("/auth/token", apiHandlers.Login)

		authorized := api.Group("", AuthMiddleware(authService, logger))
		{
			authorized.POST("/chats/personal", chatHandlers.CreatePersonalChat)
			authorized.POST("/chats/group", chatHandlers.CreateGroupChat)
			authorized.GET("/chats", chatHandlers.ListChats)
			authorized.GET("/chats/:chat_id", chatHandlers.GetChat)
			authorized.GET("/chats/:chat_id/history", messageHandlers.History)
			authorized.POST("/chats/messages", messageHandlers.CreateMessage)
			authorized.POST("/chats/messages/:message_id/read", messageHandlers.MarkRead)
		}
	}

	// websocket admission happens inside the handler via the handshake,
	// token is a query parameter
	engine.GET("/ws", wsHandler.GlobalSocket)
	engine.GET("/ws/:chat_id", wsHandler.ChatSocket)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
