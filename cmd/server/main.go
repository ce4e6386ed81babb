package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchparty/internal/core/services"
	httphandlers "watchparty/internal/handlers/http"
	"watchparty/internal/infrastructure/lifecycle"
	"watchparty/internal/infrastructure/metadata"
	"watchparty/internal/infrastructure/middleware"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/registry"
	"watchparty/internal/infrastructure/reliability"
	repositories "watchparty/internal/infrastructure/repositories"
	"watchparty/internal/infrastructure/ws"
	"watchparty/pkg/circuitbreaker"
	"watchparty/pkg/config"
	"watchparty/pkg/logger"
	"watchparty/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/watchparty/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	sessionRepo := repoFactory.CreateSessionRepository()
	participantRepo := repoFactory.CreateParticipantRepository()
	userRepo := repoFactory.CreateUserRepository()

	// Video metadata resolver: HTTP oEmbed lookup behind retry, a TTL cache
	// and a circuit breaker.
	httpResolver := metadata.NewHTTPResolver(cfg.Metadata.Providers, cfg.Metadata.RequestTimeout, log)
	guardedResolver := reliability.NewResolverWrapper(httpResolver, circuitbreaker.DefaultConfig(), log)
	cachedResolver := metadata.NewCachedResolver(guardedResolver, cfg.Metadata.CacheTTL)
	defer cachedResolver.Stop()

	// Initialize monitoring
	prometheusCollector := monitoring.NewPrometheusCollector()

	// Core: registry, per-session locks, services
	connRegistry := registry.New(log)
	locks := services.NewSessionLocks()

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	sessionService := services.NewSessionService(sessionRepo, userRepo)
	presenceService := services.NewPresenceService(sessionRepo, participantRepo, userRepo, connRegistry, locks, log)
	syncService := services.NewSyncService(sessionRepo, cachedResolver, locks, log)

	// Websocket transport
	broadcaster := ws.NewBroadcaster(connRegistry, prometheusCollector, log)
	wsServer := ws.NewServer(connRegistry, presenceService, syncService, broadcaster, authService, prometheusCollector, cfg, log)

	// Lifecycle sweeper
	sweeper := lifecycle.NewSweeper(
		sessionRepo,
		participantRepo,
		locks,
		prometheusCollector,
		cfg.Sweeper.Interval,
		cfg.Sweeper.StaleAfter,
		cfg.Sweeper.MinAge,
		log,
	)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	sweeper.Start(sweeperCtx)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, userRepo, cfg.Auth.AccessTokenTTL)
	sessionHandler := httphandlers.NewSessionHandler(sessionService, syncService, broadcaster, prometheusCollector)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Setup auth routes (public)
	authHandler.SetupRoutes(router)

	// Setup session routes with authentication
	sessionHandler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	// Websocket endpoint; the token travels as a query parameter because
	// browsers cannot set headers on websocket upgrades.
	router.GET("/ws/:id", wsServer.HandleWebSocket)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": connRegistry.ConnectionCount(),
		})
	})

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(503, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": "unhealthy",
				"error":        err.Error(),
			})
			return
		}

		c.JSON(200, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": "ok",
		})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting WatchParty server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down WatchParty server...")

	// Stop accepting websocket traffic and drop live connections
	connRegistry.CloseAll()

	// Stop the sweeper
	sweeperCancel()
	sweeper.Stop()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("WatchParty server stopped")
}
