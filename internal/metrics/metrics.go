// Package metrics exposes the dispatcher's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// Tick outcomes used as the "outcome" label.
const (
	OutcomeDispatched = "dispatched"
	OutcomeLocked     = "locked"
	OutcomeNoCampaign = "no_active_campaign"
	OutcomeNotRunning = "not_running"
	OutcomeNoAccounts = "no_accounts"
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "error"
)

type Metrics struct {
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	EmailsSent         *prometheus.CounterVec
	EmailsFailed       *prometheus.CounterVec
	AccountsDisabled   *prometheus.CounterVec
	RetryBacklogSize   prometheus.Gauge
	TickLockContention prometheus.Counter
}

// GetMetrics returns the process-wide collectors, registering them on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = New(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

// New registers a fresh set of collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_ticks_total",
			Help: "Dispatch ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatcher_tick_duration_seconds",
			Help:    "Wall-clock duration of ticks that reached the send phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		EmailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_emails_sent_total",
			Help: "Emails accepted by the transport",
		}, []string{"account"}),
		EmailsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_emails_failed_total",
			Help: "Failed send attempts by failure class",
		}, []string{"account", "class"}),
		AccountsDisabled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_accounts_disabled_total",
			Help: "Accounts benched after an account-level failure",
		}, []string{"account"}),
		RetryBacklogSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_retry_backlog_size",
			Help: "Retry backlog length after the last tick",
		}),
		TickLockContention: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_tick_lock_contended_total",
			Help: "Ticks that found the tick lock already held",
		}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
