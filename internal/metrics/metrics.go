// Package metrics holds the single prometheus registry for the monitor.
// Components receive a *Metrics and never register collectors themselves.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the monitor exports.
type Metrics struct {
	registry *prometheus.Registry

	AppUp              prometheus.Gauge
	WatchlistSize      prometheus.Gauge
	MainloopTimestamp  prometheus.Gauge
	LastProfitSol      prometheus.Gauge
	LastAlertTimestamp prometheus.Gauge

	RPCLatency    prometheus.Histogram
	TxScanSeconds prometheus.Histogram
	AlertDuration prometheus.Summary

	RPCErrors   *prometheus.CounterVec
	AlertsTotal *prometheus.CounterVec
	CacheSize   *prometheus.GaugeVec

	SignalsSent         *prometheus.CounterVec
	APICalls            *prometheus.CounterVec
	BillingWebhooks     *prometheus.CounterVec
	ActiveSubscriptions *prometheus.GaugeVec
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AppUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_app_up",
			Help: "1 while the monitor process is running",
		}),
		WatchlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_watchlist_size",
			Help: "Number of wallets currently watched",
		}),
		MainloopTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_mainloop_timestamp",
			Help: "Unix time of the last completed scan loop",
		}),
		LastProfitSol: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_last_profit_sol",
			Help: "Profit of the most recent accepted alert, in SOL",
		}),
		LastAlertTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_last_alert_timestamp",
			Help: "Unix time of the most recent accepted alert",
		}),
		RPCLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_rpc_latency_seconds",
			Help:    "Latency of individual RPC calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		TxScanSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_tx_scan_seconds",
			Help:    "Wall time of a full per-wallet scan",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AlertDuration: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "wallet_alert_duration_seconds",
			Help: "Time from detection to delivered alert",
		}),
		RPCErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_rpc_errors_total",
			Help: "RPC failures by endpoint",
		}, []string{"endpoint"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_alerts_total",
			Help: "Alerts by outcome (sent, blocked reason)",
		}, []string{"outcome"}),
		CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wallet_cache_size",
			Help: "Entries in internal caches",
		}, []string{"cache"}),
		SignalsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_sent_total",
			Help: "Signals delivered to subscribers by tier",
		}, []string{"tier"}),
		APICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_calls_total",
			Help: "API requests by endpoint and status",
		}, []string{"endpoint", "status"}),
		BillingWebhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhooks_total",
			Help: "Billing webhook events by type",
		}, []string{"event"}),
		ActiveSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_subscriptions_total",
			Help: "Active subscriptions by tier",
		}, []string{"tier"}),
	}

	reg.MustRegister(
		m.AppUp, m.WatchlistSize, m.MainloopTimestamp, m.LastProfitSol,
		m.LastAlertTimestamp, m.RPCLatency, m.TxScanSeconds, m.AlertDuration,
		m.RPCErrors, m.AlertsTotal, m.CacheSize, m.SignalsSent, m.APICalls,
		m.BillingWebhooks, m.ActiveSubscriptions,
	)
	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
