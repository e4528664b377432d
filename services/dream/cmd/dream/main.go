package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reverie/internal/ratelimit"
	"reverie/internal/usertoken"
	"reverie/internal/util"
	"reverie/pkg/queue"
	"reverie/pkg/storage"
	"reverie/services/dream/internal/app"
	"reverie/services/dream/internal/config"
	"reverie/services/dream/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	reflectionWindow, err := config.ParseReflectionWindow(cfg.ReflectionWindow)
	if err != nil {
		log.Fatalf("failed to parse reflection window: %v", err)
	}
	pendingTTL, err := config.ParsePendingTTL(cfg.PendingTTL)
	if err != nil {
		log.Fatalf("failed to parse pending TTL: %v", err)
	}
	lockTTL, err := config.ParseLockTTL(cfg.LockTTL)
	if err != nil {
		log.Fatalf("failed to parse lock TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var scripts storage.ObjectStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		store, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init script archive: %v", err)
		}
		scripts = store
	}

	appCore, err := app.New(app.Config{
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		DatabaseURL:       cfg.DatabaseURL,
		CompilerURL:       cfg.CompilerURL,
		ReferenceTimezone: cfg.ReferenceTimezone,
		ReflectionWindow:  reflectionWindow,
		PendingTTL:        pendingTTL,
		LockTTL:           lockTTL,
		BuildConcurrency:  cfg.BuildConcurrency,
		Scripts:           scripts,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	var pollLimiter *ratelimit.FixedWindowLimiter
	if cfg.PollRateLimitPerMinute > 0 {
		pollLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "reverie:ratelimit:poll",
			cfg.PollRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init poll rate limiter: %v", err)
		}
	}

	buildQueue, err := queue.NewRedisBuildQueue(queue.BuildQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.BuildStream,
		Group:    cfg.BuildGroup,
	})
	if err != nil {
		log.Fatalf("failed to init build queue: %v", err)
	}
	buildQueue.Start(context.Background(), cfg.BuildConcurrency, func(ctx context.Context, job queue.BuildJob) error {
		_, err := appCore.Build(ctx, job.UserID, job.Date)
		return err
	})

	httpServer := server.New(server.Config{
		App:           appCore,
		TokenVerifier: verifier,
		BuildToken:    cfg.BuildToken,
		PollLimiter:   pollLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("dream server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
