package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/audit"
	"github.com/trustdiner/trustdiner-api/pkg/auth"
	"github.com/trustdiner/trustdiner-api/pkg/cache"
	"github.com/trustdiner/trustdiner-api/pkg/config"
	"github.com/trustdiner/trustdiner-api/pkg/database"
	"github.com/trustdiner/trustdiner-api/pkg/handlers"
	"github.com/trustdiner/trustdiner-api/pkg/logging"
	"github.com/trustdiner/trustdiner-api/pkg/metrics"
	"github.com/trustdiner/trustdiner-api/pkg/middleware"
	"github.com/trustdiner/trustdiner-api/pkg/places"
	"github.com/trustdiner/trustdiner-api/pkg/repositories"
	"github.com/trustdiner/trustdiner-api/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	shutdownTimeout       = 15 * time.Second
	cacheCleanupInterval  = time.Minute
	usageDrainTimeout     = 5 * time.Second
	readHeaderTimeout     = 10 * time.Second
	serverIdleTimeout     = 2 * time.Minute
	serverWriteTimeout    = 60 * time.Second
	databaseConnectWindow = 30 * time.Second
)

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("redis", cfg.Redis.IsConfigured()),
		zap.Bool("google_places", cfg.Places.IsAvailable()))

	if cfg.UsesDevJWTSecret() {
		logger.Warn("JWT_SECRET is not set; using the development signing secret")
	}

	// Migrations run over database/sql because golang-migrate needs it.
	if err := migrate(cfg, logger); err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, databaseConnectWindow)
	db, err := database.NewConnection(connectCtx, &database.Config{
		URL:             cfg.Database.URL(),
		ApplicationName: "trustdiner-api",
		MaxConnections:  cfg.Database.MaxConnections,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	store, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Repositories
	venueRepo := repositories.NewVenueRepository()
	chainRepo := repositories.NewChainRepository()
	reviewRepo := repositories.NewReviewRepository()
	accountRepo := repositories.NewAccountRepository()
	tokenRepo := repositories.NewRefreshTokenRepository()
	usageRepo := repositories.NewAPIUsageRepository()

	// Provider and services
	auditor := audit.NewSecurityAuditor(logger)
	usageTracker := services.NewUsageTracker(db, usageRepo, logger)
	placesClient := places.NewClient(cfg.Places, usageTracker, m, logger)
	if !placesClient.Available() {
		logger.Warn("GOOGLE_PLACES_API_KEY is not configured; search runs against the local database only")
	}

	tokenIssuer, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		return fmt.Errorf("create token issuer: %w", err)
	}

	searchService := services.NewSearchService(db, venueRepo, placesClient, store, auditor, m, cfg.Search, logger)
	importService := services.NewImportService(db, venueRepo, placesClient, services.NewFilePhotoStore(cfg.Storage.ImageDir), store, m, logger)
	accountService := services.NewAccountService(accountRepo, tokenRepo, tokenIssuer, cfg.Auth.RefreshTokenTTL, logger)
	venueService := services.NewVenueService(venueRepo, chainRepo, store, cfg.Search.CacheTTL, logger)
	chainService := services.NewChainService(chainRepo, store, logger)
	reviewService := services.NewReviewService(reviewRepo, venueRepo, store, logger)
	userAdminService := services.NewUserAdminService(accountRepo, tokenRepo, logger)
	retentionService := services.NewRetentionService(db, accountRepo, logger)

	// HTTP
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(tokenIssuer, logger), logger)
	scope := database.WithRequestScope(db, logger)
	errWriter := handlers.NewErrorWriter(logger, !cfg.IsProduction())

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, store.Backend(), placesClient.Available(), m.Handler(), logger).RegisterRoutes(mux)
	handlers.NewSearchHandler(searchService, importService, errWriter, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAuthHandler(accountService, auth.DeriveCookieSettings(cfg.BaseURL), auditor, errWriter, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewVenueHandler(venueService, auditor, errWriter, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewChainHandler(chainService, auditor, errWriter, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewReviewHandler(reviewService, errWriter, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewAdminUserHandler(userAdminService, auditor, errWriter, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewUsageHandler(usageTracker, errWriter, logger).RegisterRoutes(mux, authMiddleware, scope)

	limiter := cache.NewFixedWindowLimiter(store, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	var handler http.Handler = mux
	handler = middleware.RateLimit(limiter, cfg.IsProduction(), m, logger)(handler)
	handler = middleware.RequestLogger(logger, m)(handler)
	handler = middleware.Recover(logger)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      serverWriteTimeout,
		IdleTimeout:       serverIdleTimeout,
	}

	retentionService.RunScheduler(ctx, cfg.Retention.PurgeInterval)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting trustdiner-api", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), usageDrainTimeout)
	defer cancelDrain()
	if err := usageTracker.Wait(drainCtx); err != nil {
		logger.Warn("Pending usage records were not written before exit", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := database.RunMigrations(sqlDB, logger.Named("migrations")); err != nil {
		return err
	}
	return nil
}

// newCache returns the Redis cache when configured and the in-process cache otherwise.
func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	client, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Info("Redis not configured; using in-memory cache")
		return cache.NewMemoryCache(cacheCleanupInterval), nil
	}
	return cache.NewRedisCache(client), nil
}
