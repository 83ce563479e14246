// Package main is the entrypoint for the agentdesk API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/agentdesk/agentdesk/internal/activity"
	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/cache"
	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/handler"
	"github.com/agentdesk/agentdesk/internal/logging"
	"github.com/agentdesk/agentdesk/internal/mcpprobe"
	"github.com/agentdesk/agentdesk/internal/metrics"
	"github.com/agentdesk/agentdesk/internal/middleware"
	"github.com/agentdesk/agentdesk/internal/repository"
	"github.com/agentdesk/agentdesk/internal/server"
	"github.com/agentdesk/agentdesk/internal/service"
	"github.com/agentdesk/agentdesk/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: cfg.OTelServiceName,
		Version:     version,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", logging.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", logging.RedactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", logging.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", logging.RedactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	tokenKey, err := cfg.TokenKey()
	if err != nil {
		logger.Error("invalid token key", "error", err)
		os.Exit(1)
	}
	sealer, err := auth.NewSealer(tokenKey)
	if err != nil {
		logger.Error("failed to create token sealer", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheus()
	activityRepo := repository.NewActivityRepository(repo)
	publisher := activity.NewPublisher(cacheClient.Client(), logger, recorder)
	prober := mcpprobe.NewProber(cfg.MCPProbeTimeout, cfg.MCPAllowPrivateHosts, version)

	// Services
	fingerprint := auth.NewFingerprinter(cfg.SessionSecret)
	authService := service.NewAuthService(service.AuthServiceConfig{
		Users:       repo,
		Sessions:    repo,
		Cache:       cacheClient,
		Tokens:      auth.NewTokenManager(cfg.SessionSecret),
		SessionTTL:  cfg.SessionTTL,
		Fingerprint: fingerprint,
		Activity:    publisher,
		Metrics:     recorder,
		Logger:      logger,
	})
	userService := service.NewUserService(repo, repo, activityRepo, authService, publisher)
	projectService := service.NewProjectService(repo, publisher)
	conversationService := service.NewConversationService(repo, repo, publisher, recorder)
	mcpService := service.NewMCPConfigService(service.MCPConfigServiceConfig{
		Projects:  repo,
		Configs:   repo,
		Sealer:    sealer,
		Validator: prober.Validator(),
		Prober:    prober,
		Activity:  publisher,
		Metrics:   recorder,
		Logger:    logger,
	})

	// Handlers
	cookie := handler.SessionCookie{
		Name:   cfg.SessionCookieName,
		Secure: !cfg.IsDevelopment(),
	}
	handlers := server.Handlers{
		Root: handler.New(version),
		Health: handler.NewHealthHandler(version).
			WithCheck("database", repo).
			WithCheck("redis", cacheClient),
		Auth:          handler.NewAuthHandler(authService, cookie, logger),
		Users:         handler.NewUserHandler(userService, cookie, logger),
		Projects:      handler.NewProjectHandler(projectService, logger),
		Conversations: handler.NewConversationHandler(conversationService, logger),
		MCP:           handler.NewMCPHandler(mcpService, logger),
	}

	trustedProxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	router := server.NewRouter(server.RouterConfig{
		Logger:   logger,
		Handlers: handlers,
		Auth: middleware.AuthConfig{
			Logger:        logger,
			Authenticator: authService,
			CookieName:    cfg.SessionCookieName,
			Fingerprint:   fingerprint,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:      logger,
			Limiter:     cacheClient,
			Fingerprint: fingerprint,
			UserEnabled: cfg.RateLimitAPIEnabled,
			UserRPM:     cfg.RateLimitAPIRPM,
			UserBurst:   cfg.RateLimitAPIBurst,
			IPEnabled:   cfg.RateLimitAuthEnabled,
			IPRPS:       cfg.RateLimitAuthRPS,
			IPBurst:     cfg.RateLimitAuthBurst,
		},
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		CORS:           corsCfg,
		Metrics:        recorder,
		MetricsHandler: metrics.Handler(),
		TracingName:    cfg.OTelServiceName,
		TrustedProxies: trustedProxies,
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first so it is flushed last.
	srv.OnShutdown("tracing", server.ShutdownFunc(shutdownTracing))

	if cfg.ActivityWorkerEnabled {
		worker := activity.NewWorker(cacheClient.Client(), activityRepo, recorder, logger, activity.WorkerConfig{
			BatchSize:    cfg.ActivityBatchSize,
			ClaimMinIdle: cfg.ActivityClaimIdle,
		})
		srv.Go("activity-worker", worker.Run, worker.Shutdown)
	}
	srv.OnShutdown("activity-publisher", publisher.Close)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"version", version,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
