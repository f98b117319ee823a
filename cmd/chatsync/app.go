package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"chatsync/internal/adapter/persist"
	"chatsync/internal/adapter/restapi"
	"chatsync/internal/adapter/transport"
	"chatsync/internal/domain"
	"chatsync/internal/infra/config"
	"chatsync/internal/infra/logger"
	"chatsync/internal/infra/tracer"
	"chatsync/internal/usecase"
	"chatsync/internal/usecase/eventbus"
	"chatsync/internal/usecase/scheduling"
)

// app holds the wired client and everything that must be closed with it.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	bus       *eventbus.Bus
	store     domain.SnapshotStore
	api       *restapi.Client
	history   usecase.HistoryOptions
	client    *usecase.Client
	scheduler *scheduling.Scheduler
	closers   []func(context.Context) error
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	clientID := uuid.NewString()
	log = log.With("client_id", clientID)
	a.logger = log

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, clientID)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	if cfg.Cache.StorePath != "" {
		store, err := persist.NewSQLiteStore(cfg.Cache.StorePath, logger.Component(log, "persist"))
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.store = store
	} else {
		a.store = persist.NewMemoryStore()
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })

	wsURL, err := cfg.Server.WebSocketURL()
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	tr := transport.NewManager(transport.Options{
		BaseURL:      wsURL,
		Token:        cfg.Server.Token,
		ClientID:     clientID,
		BaseDelay:    cfg.Transport.ReconnectBaseDelay,
		MaxDelay:     cfg.Transport.ReconnectMaxDelay,
		MaxAttempts:  cfg.Transport.MaxReconnectAttempts,
		DialTimeout:  cfg.Transport.DialTimeout,
		WriteTimeout: cfg.Transport.WriteTimeout,
		SendBuffer:   cfg.Transport.SendBuffer,
		Logger:       logger.Component(log, "transport"),
	})
	a.api = restapi.New(restapi.Options{
		BaseURL:  cfg.Server.BaseURL,
		Token:    cfg.Server.Token,
		ClientID: clientID,
		Breaker:  cfg.History.Breaker,
		Logger:   logger.Component(log, "restapi"),
	})

	a.history = usecase.HistoryOptions{
		FetchTimeout:   cfg.History.FetchTimeout,
		SessionTimeout: cfg.History.SessionTimeout,
		MaxAttempts:    cfg.History.MaxAttempts,
		RetryDelay:     cfg.History.RetryDelay,
	}
	a.bus = eventbus.New(logger.Component(log, "eventbus"))
	a.client, err = usecase.NewClient(usecase.ClientDeps{
		Transport: tr,
		API:       a.api,
		Store:     a.store,
		Bus:       a.bus,
		Logger:    logger.Component(log, "client"),
	}, usecase.ClientOptions{
		CacheTTL:    cfg.Cache.TTL,
		MaxSessions: cfg.Cache.MaxSessions,
		History:     a.history,
		SendRate:    cfg.Client.SendRatePerSec,
		SendBurst:   cfg.Client.SendBurst,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	// Runs before the store closer: closers are unwound in reverse.
	a.closers = append(a.closers, a.client.Close)

	if err := a.client.Restore(ctx); err != nil {
		log.Warn("restore snapshot failed, starting empty", "error", err)
	}

	a.scheduler = scheduling.NewScheduler(logger.Component(log, "scheduler"))
	if err := scheduling.RegisterHousekeeping(a.scheduler, a.client, cfg.Cache.PruneSchedule, cfg.Cache.FlushSchedule); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// close unwinds everything newApp set up, most recent first.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.bus != nil {
		a.bus.Close()
	}
	return errors.Join(errs...)
}
