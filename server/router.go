package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"social-publisher/infrastructure/realtime"
	httpHandler "social-publisher/interfaces/http"
	"social-publisher/interfaces/middleware"
)

type Handlers struct {
	Post       httpHandler.IPostHandler
	Connection httpHandler.IConnectionHandler
	Health     httpHandler.IHealthHandler
	// Stream is optional; nil disables GET /api/posts/stream.
	Stream *realtime.Hub
}

func InitiateRouter(h Handlers, secretKey string, allowOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:4200", "http://localhost:4201"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", h.Health.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	posts := api.Group("/posts")
	{
		posts.POST("", h.Post.Create)
		if h.Stream != nil {
			posts.GET("/stream", h.Stream.Serve)
		}
		posts.GET("/:id", h.Post.Get)
		posts.POST("/:id/schedule", h.Post.Schedule)
		posts.POST("/:id/publish", h.Post.Publish)
		posts.GET("/:id/attempts", h.Post.Attempts)
	}

	connections := api.Group("/connections")
	{
		connections.POST("", h.Connection.Connect)
		connections.GET("", h.Connection.List)
		connections.DELETE("/:id", h.Connection.Disconnect)
		connections.POST("/:id/validate", h.Connection.Validate)
	}

	return router
}
