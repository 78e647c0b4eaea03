package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/unclebandit/campaign-dispatcher/internal/queue"
)

// Ticker runs one tick.
type Ticker interface {
	Tick(ctx context.Context) (*TickResult, error)
}

// TickWorker turns triggers into ticks: queue deliveries through Handler and,
// when Interval is set, a periodic in-process schedule through Start.
type TickWorker struct {
	Engine   Ticker
	Interval time.Duration
	Logger   *slog.Logger
	// Timeout bounds one tick started by a trigger. Zero means no bound.
	Timeout time.Duration
}

func NewWorker(engine Ticker, interval time.Duration, logger *slog.Logger) *TickWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickWorker{
		Engine:   engine,
		Interval: interval,
		Logger:   logger.With("component", "tick-worker"),
	}
}

// Handler returns a queue handler running ticks under ctx. Errors are
// returned so the queue can retry; contention and idle outcomes are successes.
func (w *TickWorker) Handler(ctx context.Context) func(body []byte) error {
	return func(body []byte) error {
		trigger, err := queue.DecodeTickTrigger(body)
		if err != nil {
			w.Logger.Warn("invalid tick trigger, dropping", "error", err)
			return nil
		}
		_, err = w.run(ctx, trigger.Source)
		return err
	}
}

// Start blocks running a tick every Interval until ctx ends. It returns
// immediately when Interval is zero.
func (w *TickWorker) Start(ctx context.Context) {
	if w.Interval <= 0 {
		return
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.run(ctx, "interval"); err != nil {
				w.Logger.Error("scheduled tick failed", "error", err)
			}
		}
	}
}

func (w *TickWorker) run(ctx context.Context, source string) (*TickResult, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	res, err := w.Engine.Tick(ctx)
	if err != nil {
		return nil, err
	}
	w.Logger.Info("tick done", "source", source, "outcome", res.Outcome, "campaign", res.CampaignID, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}
