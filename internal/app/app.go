// Package app assembles the dispatcher's object graph from configuration.
// The server, worker and CLI binaries all build through here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/db"
	"github.com/unclebandit/campaign-dispatcher/internal/directory"
	"github.com/unclebandit/campaign-dispatcher/internal/mailer"
	"github.com/unclebandit/campaign-dispatcher/internal/metrics"
	"github.com/unclebandit/campaign-dispatcher/internal/queue"
	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      store.Store
	Campaigns  *service.CampaignService
	Accounts   *service.AccountService
	Dispatcher *service.Dispatcher
	Transport  *mailer.SMTPTransport
}

// OpenStore connects the configured backend and scopes it to the namespace.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverRedis:
		s, err = store.NewRedis(ctx, cfg.RedisURL)
	case config.DriverPostgres:
		conn, openErr := db.Open(ctx, cfg.DatabaseURL)
		if openErr != nil {
			return nil, openErr
		}
		if err := db.EnsureSchema(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		s = store.NewPostgres(conn)
	case config.DriverBolt:
		s, err = store.OpenBolt(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return store.WithNamespace(s, cfg.Namespace), nil
}

// New wires services over s.
func New(cfg *config.Config, s store.Store, logger *slog.Logger) *App {
	campaignRepo := &repository.CampaignRepository{Store: s}
	activityRepo := &repository.ActivityRepository{Store: s}
	healthRepo := &repository.HealthRepository{Store: s}

	transport := mailer.NewSMTPTransport(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Timeout, logger)
	accounts := service.NewAccountService(directory.NewFileDirectory(cfg.AccountsFile), healthRepo, transport, logger)
	dispatcher := service.NewDispatcher(campaignRepo, activityRepo, accounts, transport, s, cfg.Dispatch, metrics.GetMetrics(), logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      s,
		Campaigns:  service.NewCampaignService(campaignRepo, activityRepo, s, cfg.Dispatch, logger),
		Accounts:   accounts,
		Dispatcher: dispatcher,
		Transport:  transport,
	}
}

// Open is OpenStore followed by New.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, s, logger), nil
}

// TriggerQueue dials the broker. With fallback set, an unreachable broker
// yields an in-process queue instead of an error.
func (a *App) TriggerQueue(fallback bool) (queue.Queue, bool, error) {
	q, err := queue.DialAMQP(a.Config.AMQPURL, a.Logger)
	if err == nil {
		return q, true, nil
	}
	if !fallback {
		return nil, false, err
	}
	a.Logger.Warn("broker unreachable, using in-process tick queue", "error", err)
	return queue.NewInMemoryQueue(a.Logger), false, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
