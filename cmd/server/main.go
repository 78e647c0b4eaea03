// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/campaign-dispatcher/internal/app"
	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/controller"
	"github.com/unclebandit/campaign-dispatcher/internal/handler"
	"github.com/unclebandit/campaign-dispatcher/internal/logging"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "error", "text").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Async ticks go to the broker when one is reachable; otherwise an
	// in-process worker consumes them.
	q, remote, _ := a.TriggerQueue(true)
	defer q.Close()
	worker := service.NewWorker(a.Dispatcher, cfg.TickInterval, logger)
	if !remote {
		if err := q.Subscribe(cfg.TickQueue, worker.Handler(ctx)); err != nil {
			logger.Error("failed to subscribe tick queue", "error", err)
			os.Exit(1)
		}
	}
	go worker.Start(ctx)

	router := controller.NewRouter(controller.Routes{
		Campaigns:  &controller.CampaignController{CampaignService: a.Campaigns, Logger: logger},
		Views:      handler.NewCampaignHandler(a.Campaigns, logger),
		Ticks:      &handler.TickHandler{Engine: a.Dispatcher, Queue: q, Topic: cfg.TickQueue, Logger: logger},
		Accounts:   &handler.AccountHandler{Accounts: a.Accounts, Logger: logger},
		AutoSecret: cfg.AutoSecret,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("🚀 server running", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "namespace", cfg.Namespace, "broker", remote)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
