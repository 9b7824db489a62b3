package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"caminhocerto/syncserver/internal/cache"
	"caminhocerto/syncserver/internal/config"
	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/evolution"
	"caminhocerto/syncserver/internal/httpapi"
	"caminhocerto/syncserver/internal/peer"
	"caminhocerto/syncserver/internal/store"
	"caminhocerto/syncserver/internal/store/memory"
	pgstore "caminhocerto/syncserver/internal/store/postgres"
	syncsvc "caminhocerto/syncserver/internal/sync"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema bootstrap failed", zap.Error(err))
		}
		if err := seedAdmin(ctx, pg, logger); err != nil {
			logger.Fatal("admin seed failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	products := cache.ProductListingCache(cache.NoopProductListingCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductListingCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			products = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	linx := peer.New(cfg.LinxURL(), time.Duration(cfg.DeliveryTimeoutSeconds)*time.Second)
	messenger := evolution.NewClient(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance, 30*time.Second)
	webhooks := evolution.NewRouter(repo, logger)

	policy := syncsvc.RetryPolicy{
		MaxAttempts: cfg.MaxDeliveryAttempts,
		BaseBackoff: time.Duration(cfg.RetryBackoffMinutes) * time.Minute,
	}
	svc := syncsvc.New(repo, linx, policy, logger)

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	scheduler := syncsvc.NewScheduler(svc, time.Duration(cfg.SchedulerIntervalSeconds)*time.Second, logger)
	go scheduler.Run(schedulerCtx)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(httpapi.Options{
		Service:       svc,
		Auth:          auth,
		Webhooks:      webhooks,
		Messenger:     messenger,
		Linx:          linx,
		Products:      products,
		ProductTTL:    time.Duration(cfg.ProductCacheTTLSeconds) * time.Second,
		CountryCode:   cfg.DefaultCountryCode,
		GroupID:       cfg.GroupID,
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("sync server listening",
			zap.String("addr", cfg.Address()),
			zap.String("linx_url", cfg.LinxURL()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopScheduler()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// seedAdmin creates the initial admin account when the users table is
// empty. ADMIN_PASSWORD must be set explicitly for a fresh database.
func seedAdmin(ctx context.Context, repo store.Repository, logger *zap.Logger) error {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		return fmt.Errorf("users table is empty and ADMIN_PASSWORD is not set")
	}

	// Stored plain; the auth manager upgrades it to a bcrypt hash on its
	// first bootstrap pass.
	err = repo.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  password,
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	logger.Info("seeded initial admin account", zap.String("username", username))
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
