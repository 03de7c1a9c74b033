// Package metrics registers the Prometheus instruments the trading loop
// updates while running:
//   - grid_price_checks_total          – ticks that fetched a price
//   - grid_trades_total{mode,side}     – executed fills (mode: paper|live)
//   - grid_trade_failures_total{mode}  – dispatched fills that failed
//   - grid_rebuilds_total{reason}      – ladder rebuilds by trigger reason
//   - grid_equity_usd                  – portfolio value snapshot (paper mode)
//
// Served by the API server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PriceChecks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grid_price_checks_total",
		Help: "Price ticks processed",
	})

	Trades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_trades_total",
		Help: "Executed grid fills",
	}, []string{"mode", "side"})

	TradeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_trade_failures_total",
		Help: "Dispatched fills that failed",
	}, []string{"mode"})

	Rebuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_rebuilds_total",
		Help: "Ladder rebuilds by trigger reason",
	}, []string{"reason"})

	Equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_equity_usd",
		Help: "Portfolio value in USD",
	})
)

func init() {
	prometheus.MustRegister(PriceChecks, Trades, TradeFailures, Rebuilds, Equity)
}
