// Package metrics exposes exchangecore's Prometheus collectors: order
// flow, matching throughput, book depth, ledger reservations, and
// market-data fan-out delivery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric exchangecore emits.
type Collector struct {
	OrdersTotal       *prometheus.CounterVec
	OrdersRejected    *prometheus.CounterVec
	OrdersInBook      *prometheus.GaugeVec
	MatchingLatency   *prometheus.HistogramVec
	TradesTotal       *prometheus.CounterVec
	TradeVolume       *prometheus.CounterVec
	BookDepth         *prometheus.GaugeVec
	ReservationsTotal *prometheus.CounterVec
	LedgerErrors      *prometheus.CounterVec
	FanoutDropped     *prometheus.CounterVec
	FanoutDelivered   *prometheus.CounterVec
}

// New builds and registers a fresh collector against reg. Callers in
// tests should pass prometheus.NewRegistry(); cmd/server also passes a
// fresh prometheus.NewRegistry(), which internal/api serves on /metrics.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders placed, by market, side, and type.",
		}, []string{"market", "side", "type"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Total number of orders rejected, by error kind.",
		}, []string{"market", "kind"}),

		OrdersInBook: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exchangecore",
			Subsystem: "orders",
			Name:      "resting",
			Help:      "Current number of resting orders, by market and side.",
		}, []string{"market", "side"}),

		MatchingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "exchangecore",
			Subsystem: "matching",
			Name:      "latency_seconds",
			Help:      "place_order end-to-end latency.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"market"}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed, by market.",
		}, []string{"market"}),

		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "trades",
			Name:      "volume_base",
			Help:      "Total traded volume in base-asset units, by market.",
		}, []string{"market"}),

		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exchangecore",
			Subsystem: "book",
			Name:      "levels",
			Help:      "Current number of price levels, by market and side.",
		}, []string{"market", "side"}),

		ReservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "ledger",
			Name:      "reservations_total",
			Help:      "Total number of reserve/release operations, by outcome.",
		}, []string{"operation", "outcome"}),

		LedgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Total ledger errors, by error kind.",
		}, []string{"kind"}),

		FanoutDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "marketdata",
			Name:      "fanout_dropped_total",
			Help:      "Messages dropped because a subscriber's buffer was full.",
		}, []string{"topic"}),

		FanoutDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchangecore",
			Subsystem: "marketdata",
			Name:      "fanout_delivered_total",
			Help:      "Messages delivered to subscribers.",
		}, []string{"topic"}),
	}

	reg.MustRegister(
		c.OrdersTotal, c.OrdersRejected, c.OrdersInBook, c.MatchingLatency,
		c.TradesTotal, c.TradeVolume, c.BookDepth,
		c.ReservationsTotal, c.LedgerErrors,
		c.FanoutDropped, c.FanoutDelivered,
	)
	return c
}

// Handler returns the Prometheus scrape handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
