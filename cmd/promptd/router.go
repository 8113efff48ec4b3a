package main

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/JohnPlummer/prompt-completer/completer"
)

// newRouter builds the HTTP router for the prompt completion service.
func newRouter(c completer.Completer, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	h := &handlers{completer: c, logger: logger}

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(completer.GetMetricsHandler()))
	router.POST("/process-prompts", h.ProcessPrompts)

	return router
}
