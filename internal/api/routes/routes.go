package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/api/handlers"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/api/middleware"
)

type Deps struct {
	Voice *handlers.VoiceHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", d.Voice.Health)

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/session/start", d.Voice.Start)
	auth.POST("/session/end", d.Voice.End)
}
