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

	app "github.com/maximilianalessandronmartin/taskquest"
	"github.com/maximilianalessandronmartin/taskquest/internal/config"
	"github.com/maximilianalessandronmartin/taskquest/internal/hub"
	"github.com/maximilianalessandronmartin/taskquest/internal/notify"
	"github.com/maximilianalessandronmartin/taskquest/internal/server"
	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/internal/store"
	"github.com/maximilianalessandronmartin/taskquest/internal/sweeper"
	"github.com/maximilianalessandronmartin/taskquest/internal/timer"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

type taskquest struct {
	cfg        *config.Config
	store      store.Store
	hub        *hub.Hub
	timers     *service.TimerService
	sweeper    *sweeper.Sweeper
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrOpenStore     = errors.New("failed to open store")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrStartSweeper  = errors.New("failed to start timer sweeper")
)

func newTaskQuest(cfg *config.Config) *taskquest {
	return &taskquest{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
}

func (s *taskquest) run() error {
	if err := s.initializeStore(); err != nil {
		return err
	}

	if err := s.initializeTimers(); err != nil {
		_ = s.store.Close()
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *taskquest) setupLogging() {
	level, ok := log.ParseLevel(s.cfg.LogLevel)
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("TaskQuest timer service starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("store_driver", s.cfg.Store.Driver),
		slog.String("redis_addr", s.cfg.Store.Redis.Addr),
		slog.Int("redis_db", s.cfg.Store.Redis.DB),
		slog.String("sqlite_path", s.cfg.Store.SQLitePath),
		slog.Int64("sweep_interval_ms", s.cfg.Timer.SweepInterval),
		slog.Int64("tolerance_ms", s.cfg.Timer.Tolerance),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *taskquest) initializeStore() error {
	st, err := openStore(context.Background(), &s.cfg.Store)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenStore, err)
	}
	s.store = st
	return nil
}

func openStore(ctx context.Context, cfg *config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		r := cfg.Redis
		return store.OpenRedis(ctx, r.Addr, r.Password, r.DB, r.Prefix)
	case config.DriverSQLite:
		return store.OpenSQLite(cfg.SQLitePath)
	case config.DriverMemory:
		slog.Warn("Using in-memory store; timers are lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

func (s *taskquest) initializeTimers() error {
	s.hub = hub.New()
	notes := notify.NewService(s.store, s.hub)

	s.timers = service.NewTimerService(service.Dependencies{
		Store: s.store,
		Engine: timer.NewEngine(
			s.cfg.Timer.Tolerance, s.cfg.Timer.DefaultDuration,
		),
		Pusher:   s.hub,
		Notifier: notify.NewCompletionNotifier(notes),
	})

	s.sweeper = sweeper.New(s.store, s.timers, sweeper.Config{
		Interval: s.cfg.SweepInterval(),
	})
	if err := s.sweeper.Start(context.Background()); err != nil {
		s.hub.Close()
		return fmt.Errorf("%w: %w", ErrStartSweeper, err)
	}

	s.apiServer = server.NewServer(server.Dependencies{
		Timers:        s.timers,
		Notifications: notes,
		Hub:           s.hub,
		Metrics:       s.cfg.MetricsEnabled,
	})
	return nil
}

func (s *taskquest) sweepOnce(ctx context.Context) (*sweeper.Result, error) {
	if err := s.initializeStore(); err != nil {
		return nil, err
	}
	defer func() { _ = s.store.Close() }()

	timers := service.NewTimerService(service.Dependencies{
		Store: s.store,
		Engine: timer.NewEngine(
			s.cfg.Timer.Tolerance, s.cfg.Timer.DefaultDuration,
		),
		Notifier: notify.NewCompletionNotifier(
			notify.NewService(s.store, nil),
		),
	})
	return sweeper.New(s.store, timers, sweeper.Config{}).Sweep(ctx)
}

func (s *taskquest) startServer() {
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *taskquest) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.sweeper.Stop()
	s.hub.Close()

	if err := s.store.Close(); err != nil {
		slog.Error("Store shutdown failed", log.Error(err))
	}

	slog.Info("Server exited")
}
