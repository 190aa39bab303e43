package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/config"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/api/handlers"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/api/middleware"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/api/routes"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/cache"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/logger"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/providers/retrieval"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/registry"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/rooms"
	pgrepo "github.com/KomalSiddharth/Intelligent-manifestation-System/internal/repositories/postgres"
	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/services"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	// Missing credentials are a startup failure, never a per-request error.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	log.Info("PostgreSQL connected")

	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}

	var retrievalCache cache.Cache = cache.Noop{}
	if config.RedisClient != nil {
		retrievalCache = cache.NewRedisCache(config.RedisClient)
		log.Info("Redis connected")
	} else {
		log.Info("Redis not configured; retrieval cache disabled")
	}

	ctx := context.Background()

	embedder, err := retrieval.NewVertexEmbedder(ctx, cfg.GoogleProjectID, cfg.GoogleLocation, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("Vertex embedder init error: %v", err)
	}
	defer embedder.Close()

	retriever := retrieval.NewPGVector(
		pgrepo.NewKnowledgeRepo(config.PostgresDB),
		embedder,
		retrievalCache,
		log,
	)

	reg := registry.New(cfg.MaxSessions, log)
	roomProvider := rooms.NewDaily(cfg.DailyAPIKey, cfg.DailyAPIURL)
	launcher := services.NewEngineLauncher(cfg, retriever, reg, log)
	voice := services.NewVoiceService(reg, roomProvider, launcher, log)

	// Idle sweeper: sessions with no participant activity past the threshold
	// are ended and their slots reclaimed.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if n := reg.Sweep(cfg.MaxIdle); n > 0 {
				log.WithField("swept", n).Info("idle sweep ended sessions")
			}
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Voice: handlers.NewVoiceHandler(voice),
	})

	log.WithField("port", cfg.Port).Info("voice server listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
