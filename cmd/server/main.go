package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/config"
	"github.com/DoyleJ11/lumberjack-backend/internal/engine"
	"github.com/DoyleJ11/lumberjack-backend/internal/game"
	"github.com/DoyleJ11/lumberjack-backend/internal/httpapi"
	"github.com/DoyleJ11/lumberjack-backend/internal/hub"
	"github.com/DoyleJ11/lumberjack-backend/internal/notify"
	"github.com/DoyleJ11/lumberjack-backend/internal/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type scoreStore interface {
	game.Store
	Close() error
}

type notifier interface {
	game.Notifier
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}

	os.Exit(serve(cfg, log))
}

// serve runs the server and flushes the logger before the exit code is used.
func serve(cfg config.Config, log *zap.Logger) int {
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg config.Config, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st scoreStore = store.NewMemory()
	if dsn := cfg.DSN(); dsn != "" {
		db, err := store.Open(dsn, log.Named("store"))
		if err != nil {
			return err
		}
		st = db
		log.Info("connected to postgres")
	} else {
		log.Warn("no database configured, scores are kept in memory")
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	var n notifier = notify.Nop{}
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(cfg.NATSURL, cfg.NATSSubject, log.Named("notify"))
		if err != nil {
			return err
		}
		n = nc
		log.Info("publishing round results to nats", zap.String("url", cfg.NATSURL))
	}
	defer func() { err = multierr.Append(err, n.Close()) }()

	// Sessions outlive the signal context so shutdown can close them in order.
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	h := hub.NewHub(appCtx, log.Named("hub"))
	svc := game.NewService(appCtx, h, st, n, log.Named("game"), game.Options{
		Rules:          engine.Rules{MaxTime: cfg.MaxTime, TimeBonus: cfg.TimeBonus},
		TickInterval:   cfg.TickInterval,
		IdleTimeout:    cfg.IdleTimeout,
		SweepInterval:  cfg.SweepInterval,
		PersistTimeout: cfg.PersistTimeout,
	})

	// Build the router *with* the service injected
	api := httpapi.NewAPI(svc, cfg.Events, log.Named("http"))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.SetupRoutes(api, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunSweeper(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(shutdownCtx),
			svc.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
