package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/ttt-rooms/internal/archive"
	appcfg "github.com/park285/ttt-rooms/internal/config"
	"github.com/park285/ttt-rooms/internal/msgcat"
	"github.com/park285/ttt-rooms/internal/obslog"
	"github.com/park285/ttt-rooms/internal/persist"
	"github.com/park285/ttt-rooms/internal/render"
	"github.com/park285/ttt-rooms/internal/roomstore"
	"github.com/park285/ttt-rooms/internal/schedule"
	"github.com/park285/ttt-rooms/internal/session"
	"github.com/park285/ttt-rooms/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	if err := run(cfg); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig) error {
	logger := obslog.L()
	ctx := context.Background()

	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		return err
	}

	snap, err := openSnapshotter(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := roomstore.Open(ctx, snap, roomstore.WithLogger(obslog.Named("roomstore")))
	if err != nil {
		_ = snap.Close()
		return err
	}
	// Connections do not survive a restart, so nobody can hold a seat yet.
	if cfg.ReleaseSeats {
		n, err := store.ReleaseSeats(ctx)
		if err != nil {
			logger.Warn("release_seats_error", zap.Error(err))
		} else {
			logger.Info("release_seats", zap.Int("rooms", n))
		}
	}

	var coordOpts []session.Option
	var history transport.GameHistory
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("archive_disabled", zap.Error(err))
		} else if err := repo.EnsureSchema(ctx); err != nil {
			logger.Warn("archive_disabled", zap.Error(err))
			_ = repo.Close()
			repo = nil
		}
		if repo != nil {
			coordOpts = append(coordOpts, session.WithArchiver(repo))
			history = repo
			logger.Info("archive_enabled")
		}
	}
	coord := session.NewCoordinator(store, coordOpts...)

	sched := schedule.New()
	srv := transport.New(transport.Deps{
		Coordinator:    coord,
		Scheduler:      sched,
		Catalog:        cat,
		Renderer:       render.NewRenderer(),
		History:        history,
		RestartDelay:   cfg.RestartDelay,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	sched.Every("inactivity_sweep", cfg.SweepInterval, func(ctx context.Context) {
		removed, err := store.DeleteInactive(ctx, cfg.InactiveAfter)
		if err != nil {
			logger.Warn("sweep_error", zap.Error(err))
			return
		}
		if len(removed) > 0 {
			logger.Info("sweep", zap.Strings("room_ids", removed), zap.Int("remaining", store.Len()))
		}
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listen", zap.String("addr", cfg.Addr), zap.Int("rooms", store.Len()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Shutdown does not track hijacked websocket connections. Seats still held at the final
	// flush are released on the next boot.
	srv.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	sched.Stop()
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("final_flush_error", zap.Error(err))
	}
	if err := repo.Close(); err != nil {
		logger.Warn("archive_close_error", zap.Error(err))
	}
	return serveErr
}

func openSnapshotter(ctx context.Context, cfg *appcfg.AppConfig) (persist.Snapshotter, error) {
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rs, err := persist.NewRedisStore(pingCtx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		obslog.L().Info("snapshot_store", zap.String("kind", "redis"))
		return rs, nil
	}
	fs, err := persist.NewFileStore(cfg.SessionsFile)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("snapshot_store", zap.String("kind", "file"), zap.String("path", fs.Path()))
	return fs, nil
}
