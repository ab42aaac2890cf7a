// Package monitoring exposes Prometheus metrics and the health endpoint for
// the trading daemon.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lmoura/cryptopilot/internal/domain"
	"github.com/lmoura/cryptopilot/internal/feed"
	"github.com/lmoura/cryptopilot/internal/risk"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptopilot_trades_total",
			Help: "Total number of orders filled",
		},
		[]string{"symbol", "side"},
	)

	orderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptopilot_order_failures_total",
			Help: "Total number of order submissions that failed",
		},
		[]string{"symbol"},
	)

	tradeRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptopilot_trade_rejections_total",
			Help: "Total number of entries rejected by risk validation",
		},
		[]string{"symbol", "reason"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cryptopilot_current_price",
			Help: "Last observed price per symbol",
		},
		[]string{"symbol"},
	)

	feedState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryptopilot_feed_state",
			Help: "Market data feed state (0=disconnected 1=connecting 2=streaming 3=degraded 4=failed)",
		},
	)

	// Risk metrics
	portfolioRiskPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryptopilot_portfolio_risk_pct",
			Help: "Open portfolio risk as a fraction of balance",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptopilot_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)

	restartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cryptopilot_restarts_total",
			Help: "Total number of supervisor restarts",
		},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(orderFailuresTotal)
	prometheus.MustRegister(tradeRejectionsTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(feedState)
	prometheus.MustRegister(portfolioRiskPct)
	prometheus.MustRegister(errorsTotal)
	prometheus.MustRegister(restartsTotal)
}

// UpdatePrice updates the last-price gauge for a symbol.
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdateFeedState updates the feed state gauge.
func UpdateFeedState(s feed.State) {
	feedState.Set(feedStateValue(s))
}

func feedStateValue(s feed.State) float64 {
	switch s {
	case feed.StateConnecting:
		return 1
	case feed.StateStreaming:
		return 2
	case feed.StateDegraded:
		return 3
	case feed.StateFailed:
		return 4
	default:
		return 0
	}
}

// UpdatePortfolioRisk updates the open portfolio risk gauge.
func UpdatePortfolioRisk(pct float64) {
	portfolioRiskPct.Set(pct)
}

// RecordError records an error by type.
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordRestart counts a supervisor restart.
func RecordRestart() {
	restartsTotal.Inc()
}

// Recorder adapts the package metrics to the controller's TradeRecorder
// interface.
type Recorder struct{}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordTrade counts a filled order.
func (Recorder) RecordTrade(symbol string, side domain.OrderSide) {
	tradesTotal.WithLabelValues(symbol, string(side)).Inc()
}

// RecordOrderFailure counts a failed order submission.
func (Recorder) RecordOrderFailure(symbol string) {
	orderFailuresTotal.WithLabelValues(symbol).Inc()
	errorsTotal.WithLabelValues("order").Inc()
}

// RecordRejection counts a risk-validation rejection.
func (Recorder) RecordRejection(symbol string, reason risk.RejectReason) {
	tradeRejectionsTotal.WithLabelValues(symbol, string(reason)).Inc()
}
