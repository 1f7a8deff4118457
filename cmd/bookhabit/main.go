package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookhabit/internal/app"
	"bookhabit/internal/config"
	"bookhabit/internal/ratelimit"
	"bookhabit/internal/server"
	"bookhabit/internal/util"
	"bookhabit/pkg/ai"
	"bookhabit/pkg/queue"
	"bookhabit/pkg/storage"
	"bookhabit/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	sessions, err := store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, "", time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}
	objects, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	var backend ai.TextGenerator
	if cfg.AIBaseURL != "" {
		backend = ai.NewOpenAICompatClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, time.Duration(cfg.AITimeoutSeconds)*time.Second)
	}
	generator := ai.NewContentGenerator(backend, time.Duration(cfg.AITimeoutSeconds)*time.Second)
	if !generator.Configured() {
		logger.Warn("no generation backend configured, books will get templated content")
	}

	appCore, err := app.New(app.Config{
		Store:             dataStore,
		Sessions:          sessions,
		Objects:           objects,
		Queue:             jobQueue,
		Generator:         generator,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:     appCore,
		Limiter: limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobQueue.Start(ctx, cfg.QueueConcurrency, func(jobCtx context.Context, job queue.JobStatus) error {
		return appCore.ProcessBook(jobCtx, job.BookID)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("bookhabit server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
