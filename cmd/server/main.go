package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagement-backend/internal/config"
	"engagement-backend/internal/database"
	"engagement-backend/internal/handlers"
	"engagement-backend/internal/logger"
	"engagement-backend/internal/middleware"
	"engagement-backend/internal/repository"
	"engagement-backend/internal/router"
	"engagement-backend/internal/services"
	"engagement-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode, cfg.LogRedaction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting engagement backend", "env", cfg.Env, "lock_backend", cfg.LockBackend)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewLearningSessionRepo(pool)
	progressRepo := repository.NewProgressRepo(pool)
	contentRepo := repository.NewContentRepo(pool)
	assignmentRepo := repository.NewAssignmentRepo(pool)

	// ──── Step 5: Locks, Media Handles, Event Hub ────
	var locker services.Locker
	switch cfg.LockBackend {
	case "memory":
		locker = services.NewKeyedMutex()
	default:
		locker = services.NewRedisLocker(redisClients.Commands, cfg.LockTTL, log)
	}

	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.Commands, redisClients.PubSub, jwtAuth, log)

	// Left as nil interfaces when disabled so the services skip release.
	var (
		mediaReleaser services.MediaReleaser
		mediaHandles  handlers.MediaHandles
	)
	if cfg.MediaHandlesEnabled {
		registry := services.NewRedisMediaHandles(redisClients.Commands, cfg.MediaHandleTTL)
		mediaReleaser = registry
		mediaHandles = registry
		log.Info("media handle registry enabled", "ttl", cfg.MediaHandleTTL.String())
	}

	// ──── Initialize Services ────
	progressService := services.NewProgressService(progressRepo, contentRepo, assignmentRepo, wsHub, locker, log)
	sessionService := services.NewSessionService(sessionRepo, contentRepo, mediaReleaser, progressService, locker, log)

	// ──── Step 6: Start Session Janitor ────
	janitor := services.NewSessionJanitor(sessionRepo, sessionService, cfg.SessionStaleAfter, cfg.JanitorInterval, log)
	janitor.Start()

	// ──── Step 7: Start HTTP Server ────
	learningHandler := handlers.NewLearningHandler(sessionService, progressService, mediaHandles, log)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)

	r := router.New(jwtAuth, learningHandler, wsHub, limiter, log, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		janitor.Stop()
		limiter.Stop()
		wsHub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
	}()

	log.Info("engagement backend ready",
		"addr", server.Addr,
		"api", "/api/v1/learning",
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", "error", err)
	}
}
