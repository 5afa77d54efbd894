package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/eldtechnologies/tarschat/internal/api"
	"github.com/eldtechnologies/tarschat/internal/api/middleware"
	"github.com/eldtechnologies/tarschat/internal/chat"
	"github.com/eldtechnologies/tarschat/internal/config"
	"github.com/eldtechnologies/tarschat/internal/handlers"
	"github.com/eldtechnologies/tarschat/internal/realtime"
	"github.com/eldtechnologies/tarschat/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relational store: PostgreSQL when configured, SQLite otherwise
	var ds store.DataStore
	storeName := "sqlite"
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		ds = pgStore
		storeName = "postgres"
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		ds = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer ds.Close()

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	opts := []chat.Option{chat.WithLogger(logger.With().Str("component", "chat").Logger())}

	// Redis: typing signals and cross-instance event relay
	var redisStore *store.RedisStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		logger.Info().Msg("connected to Redis")

		relay := realtime.NewRedisRelay(redisClient, "", hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("event relay stopped")
			}
		}()
		opts = append(opts, chat.WithTypingStore(redisStore), chat.WithPublisher(relay))
	} else {
		opts = append(opts, chat.WithPublisher(hub))
	}

	svc := chat.NewService(ds, opts...)

	if cfg.PresenceSweepCron != "" {
		sweeper, err := chat.NewPresenceSweeper(svc, cfg.PresenceSweepCron, cfg.PresenceStaleAfter)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid presence sweep schedule")
		}
		go sweeper.Run(ctx)
	}

	var webhook *svix.Webhook
	if cfg.WebhookSecret != "" {
		webhook, err = svix.NewWebhook(cfg.WebhookSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid webhook secret")
		}
	} else {
		logger.Warn().Msg("WEBHOOK_SECRET not set; identity webhooks disabled")
	}

	secret := cfg.JWTSecret
	if secret == "" && cfg.JWTPublicKey == "" && cfg.IsDevelopment() {
		secret = "dev-secret"
		logger.Warn().Msg("JWT_SECRET not set; using the development secret")
	}
	auth, err := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Secret:       secret,
		PublicKeyPEM: cfg.JWTPublicKey,
		Issuer:       cfg.JWTIssuer,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("auth setup failed")
	}

	h := handlers.NewHandler(handlers.Config{
		Service:        svc,
		Store:          ds,
		StoreName:      storeName,
		Redis:          redisStore,
		Hub:            hub,
		Webhook:        webhook,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Handler:     h,
		Auth:        auth,
		RedisClient: redisClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", storeName).
			Msg("starting tarschat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Stop background workers before draining requests
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
