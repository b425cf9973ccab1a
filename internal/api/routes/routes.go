package routes

import (
	"log/slog"
	"net/http"
	"time"

	"vidshare-realtime/internal/api/handlers"
	"vidshare-realtime/internal/api/middleware"
	"vidshare-realtime/internal/websocket"

	"github.com/gin-gonic/gin"
)

// Options carries the optional collaborators of the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// RateLimiter is nil when Redis is not configured.
	RateLimiter middleware.RateLimiter
	// Archive serves history for conversations not held in memory.
	Archive handlers.MessageArchive
	Logger  *slog.Logger
}

type Router struct {
	engine              *gin.Engine
	wsHandler           *handlers.WSHandler
	presenceHandler     *handlers.PresenceHandler
	conversationHandler *handlers.ConversationHandler
	rateLimitMW         *middleware.RateLimitMiddleware
}

func NewRouter(hub *websocket.Hub, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(opts.AllowedOrigins))
	engine.Use(middleware.LogApi(logger.With("component", "http")))

	return &Router{
		engine:              engine,
		wsHandler:           handlers.NewWSHandler(hub),
		presenceHandler:     handlers.NewPresenceHandler(hub.Presence()),
		conversationHandler: handlers.NewConversationHandler(hub, opts.Archive, logger.With("component", "conversation-api")),
		rateLimitMW:         middleware.NewRateLimitMiddleware(opts.RateLimiter, logger.With("component", "rate-limit")),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(30, time.Minute), // 30 connections per minute per IP
		r.wsHandler.HandleWebSocket,
	)
	api.GET("/ws/stats", r.wsHandler.GetStats)
	api.GET("/ws/metrics", r.wsHandler.GetMetrics)

	presence := api.Group("/presence")
	{
		presence.GET("/online-count", r.presenceHandler.GetOnlineCount)
		presence.GET("/users/:userId", r.presenceHandler.GetUserPresence)
	}

	conversations := api.Group("/conversations")
	{
		conversations.GET("", r.conversationHandler.ListConversations)
		conversations.GET("/:id/messages", r.conversationHandler.GetMessages)
		conversations.POST("/:id/messages",
			r.rateLimitMW.RateLimitIP(120, time.Minute), // 120 messages per minute per IP
			r.conversationHandler.SendMessage,
		)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
