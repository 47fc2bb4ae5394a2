// kessd is the local POS daemon: it owns the embedded store, the tenant
// session, the sync engine and the HTTP facade the UI talks to.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kesspos/kesspos/internal/app"
	"github.com/kesspos/kesspos/internal/observability"
	"github.com/kesspos/kesspos/internal/platform/store"
	"github.com/kesspos/kesspos/internal/pos"
	"github.com/kesspos/kesspos/internal/session"
	"github.com/kesspos/kesspos/internal/syncer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open local store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("close local store", slog.Any("error", err))
		}
	}()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := session.NewManager(redisClient)
	metrics := observability.NewMetrics()

	// The service and engine reference each other: the service signals the
	// engine after every mutation, the engine reads pending records back
	// through the service. Wire the service first with a late-bound signal.
	syncSignal := &lateSignal{}
	service := pos.NewService(st, syncSignal, logger, metrics)

	engine := syncer.New(syncer.Config{
		Source:   service,
		Scopes:   sessions,
		Pusher:   syncer.NewHTTPPusher(cfg.SyncEndpoint, cfg.SyncPushTimeout),
		Debounce: cfg.SyncDebounce,
		Logger:   logger,
		Metrics:  metrics,
	})
	syncSignal.bind(engine)
	engine.Start(ctx)

	handler := pos.NewHandler(logger, service, sessions, engine)
	router := app.NewRouter(app.RouterConfig{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Handler: handler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("kessd listening", slog.String("addr", cfg.AppAddr))
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

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("kessd terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

// lateSignal defers the engine reference until both sides exist.
type lateSignal struct {
	engine *syncer.Engine
}

func (l *lateSignal) bind(engine *syncer.Engine) {
	l.engine = engine
}

func (l *lateSignal) Signal() {
	if l.engine != nil {
		l.engine.Signal()
	}
}
