// Command roledir runs the role directory service: an HTTP adapter over
// the access decision engine, the role store and the token validation
// core.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roledir/roledir/internal/app"
	"github.com/roledir/roledir/internal/authz"
	"github.com/roledir/roledir/internal/observability"
	"github.com/roledir/roledir/internal/platform/cache"
	"github.com/roledir/roledir/internal/platform/db"
	"github.com/roledir/roledir/internal/roles"
	"github.com/roledir/roledir/internal/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "roledir: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var store roles.Store
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = roles.NewPGStore(pool)
		logger.Info("using postgres role store")
	} else {
		store = roles.NewMemoryStore()
		logger.Warn("PG_DSN not set, using in-memory role store")
	}

	var tokenCache token.Cache
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		tokenCache = token.NewRedisCache(client, cfg.TokenCacheTTL)
		logger.Info("using redis token cache", slog.String("addr", cfg.RedisAddr))
	} else {
		tokenCache = token.NewMemoryCache(cfg.TokenCacheSize, cfg.TokenCacheMaxSize, cfg.TokenCacheTTL)
	}
	tokenCache = token.InstrumentCache(tokenCache, metrics)

	verifier := token.NewClient(cfg.AuthServiceURL, cfg.VerifyTimeout)

	engine := authz.NewEngine(cfg.GateRole)
	service := roles.NewService(store, engine, logger, roles.RootReadPolicy(cfg.RootReadPolicy))
	handler := roles.NewHandler(logger, service)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Verifier:     verifier,
		Cache:        tokenCache,
		RolesHandler: handler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.AppAddr), slog.String("gate_role", cfg.GateRole))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
