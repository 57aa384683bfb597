package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/opsboard/opsboard/internal/app"
	"github.com/opsboard/opsboard/internal/areas"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/observability"
	"github.com/opsboard/opsboard/internal/platform/cache"
	"github.com/opsboard/opsboard/internal/platform/clock"
	"github.com/opsboard/opsboard/internal/platform/db"
	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/session"
	"github.com/opsboard/opsboard/internal/shared"
	"github.com/opsboard/opsboard/internal/users"
	"github.com/opsboard/opsboard/jobs"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	policy := roles.DefaultPolicy()
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	sessionStore := session.NewRedisStore(redisClient, session.RedisStoreOptions{
		Retention:     cfg.SessionRetention,
		RetryAttempts: cfg.StoreRetryAttempts,
		RetryBase:     cfg.StoreRetryBase,
	})
	sessions := session.NewProvider(sessionStore, "", cfg.SessionTTL, clock.Real(), logger)

	auditLogger := shared.NewAuditLogger(pool)
	areasRepo := areas.NewRepository(pool)
	areasService := areas.NewService(areasRepo, areas.NewTreeCache(redisClient, cfg.AreaCacheTTL), auditLogger, logger)
	areasHandler := areas.NewHandler(logger, areasService)

	authService := auth.NewService(auth.NewRepository(pool), areasRepo, logger)
	authHandler := auth.NewHandler(logger, authService, policy, csrfManager)

	usersService := users.NewService(users.NewRepository(pool), areasService.Authorizer())
	usersHandler := users.NewHandler(logger, usersService, policy)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Policy:       policy,
		Sessions:     sessions,
		CSRFManager:  csrfManager,
		AuthHandler:  authHandler,
		AreasHandler: areasHandler,
		UsersHandler: usersHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
