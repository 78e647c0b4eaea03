package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/campaign-dispatcher/internal/app"
	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/logging"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

// The worker consumes tick triggers from the broker and, with
// TICK_INTERVAL set, also ticks on its own schedule. Any number of workers
// may run; the tick lock serializes them.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "error", "text").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("process", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	q, _, err := a.TriggerQueue(false)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	worker := service.NewWorker(a.Dispatcher, cfg.TickInterval, logger)
	worker.Timeout = cfg.Dispatch.LockTTL
	if err := q.Subscribe(cfg.TickQueue, worker.Handler(ctx)); err != nil {
		logger.Error("failed to register consumer", "error", err)
		os.Exit(1)
	}
	go worker.Start(ctx)

	logger.Info("worker running, waiting for tick triggers", "queue", cfg.TickQueue, "interval", cfg.TickInterval)
	<-ctx.Done()
	logger.Info("worker stopping")
}
