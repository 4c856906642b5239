package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/bootstrap"
	"gopherai-docqa/internal/platform/gormdb"
	rabbitmqClient "gopherai-docqa/internal/platform/rabbitmq"
	redisClient "gopherai-docqa/internal/platform/redis"
	"gopherai-docqa/internal/transport/http/handler"
)

const maxMultipartMemory = 32 << 20

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(corsConfig(app.Config.App.CORSOrigins)))

	healthHandler := handler.NewHealthHandler(
		app.Config.App.Name,
		app.Config.App.Env,
		app.StartedAt,
		dependencyChecks(app),
		app.Index.Len,
	)
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Pipeline, app.Registry)
	chatHandler := handler.NewChatHandler(app.Orchestrator, app.Ledger)

	api := router.Group("/api")
	api.GET("/", handler.Banner)

	documents := api.Group("/documents")
	documents.POST("/upload", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.DELETE("/:id", documentHandler.Delete)
	documents.GET("/:id/file", documentHandler.Download)

	chat := api.Group("/chat")
	chat.POST("", chatHandler.Ask)
	chat.GET("/history", chatHandler.GetHistory)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func dependencyChecks(app *bootstrap.App) map[string]handler.DependencyCheck {
	checks := map[string]handler.DependencyCheck{
		"database": func(ctx context.Context) error {
			return gormdb.Ping(ctx, app.DB)
		},
		"chunk_store": func(ctx context.Context) error {
			return app.ChunkDB.PingContext(ctx)
		},
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx, app.Redis)
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			return rabbitmqClient.Ping(app.MQConn)
		}
	}
	return checks
}
