package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's exported counters and gauges. Export transport is
// the caller's concern (cmd/server mounts a /metrics endpoint).
type Metrics struct {
	OrdersReceived prometheus.Counter
	TradesExecuted prometheus.Counter
	ActiveOrders   prometheus.Gauge
	OpenBooks      prometheus.Gauge
}

// NewMetrics builds the metric set and registers it when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_received_total",
			Help: "Orders accepted into the engine.",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_trades_executed_total",
			Help: "Trades generated by matching.",
		}),
		ActiveOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_active_orders",
			Help: "Resting orders across all books.",
		}),
		OpenBooks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_books",
			Help: "Order books created so far.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.OrdersReceived, m.TradesExecuted, m.ActiveOrders, m.OpenBooks)
	}
	return m
}
