// Package metrics exposes replay and ledger counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of a session.
type Metrics struct {
	registry *prometheus.Registry

	Ticks              prometheus.Counter
	Transitions        *prometheus.CounterVec // labels: kind
	IndicatorRecompute *prometheus.CounterVec // labels: mode=full|incremental
	OrdersFilled       *prometheus.CounterVec // labels: type
	FillsSkipped       prometheus.Counter
	Brackets           *prometheus.CounterVec // labels: reason
	TradesClosed       prometheus.Counter
	Equity             prometheus.Gauge
	OpenPositions      prometheus.Gauge
	PendingOrders      prometheus.Gauge
	Clock              prometheus.Gauge
	FramesDropped      prometheus.Counter
	StreamClients      prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barreplay_player_ticks_total",
			Help: "Steps taken by the auto-player",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barreplay_transitions_total",
			Help: "Visible-window transitions by kind",
		}, []string{"kind"}),
		IndicatorRecompute: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barreplay_indicator_recomputes_total",
			Help: "Indicator series updates by mode",
		}, []string{"mode"}),
		OrdersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barreplay_orders_filled_total",
			Help: "Pending orders that executed, by order type",
		}, []string{"type"}),
		FillsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barreplay_orders_skipped_total",
			Help: "Triggered pending orders consumed without executing",
		}),
		Brackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barreplay_brackets_triggered_total",
			Help: "Stop-loss and take-profit closes",
		}, []string{"reason"}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barreplay_trades_closed_total",
			Help: "Closed trades appended to history",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barreplay_equity",
			Help: "Account equity at the last revealed close",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barreplay_open_positions",
			Help: "Open positions",
		}),
		PendingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barreplay_pending_orders",
			Help: "Resting limit and stop orders",
		}),
		Clock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barreplay_clock_seconds",
			Help: "Replay clock as a unix timestamp",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barreplay_frames_dropped_total",
			Help: "Frames not delivered to slow stream clients",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barreplay_stream_clients",
			Help: "Connected websocket and SSE clients",
		}),
	}

	m.registry.MustRegister(
		m.Ticks,
		m.Transitions,
		m.IndicatorRecompute,
		m.OrdersFilled,
		m.FillsSkipped,
		m.Brackets,
		m.TradesClosed,
		m.Equity,
		m.OpenPositions,
		m.PendingOrders,
		m.Clock,
		m.FramesDropped,
		m.StreamClients,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIndicator counts one indicator series update.
func (m *Metrics) ObserveIndicator(full bool) {
	mode := "incremental"
	if full {
		mode = "full"
	}
	m.IndicatorRecompute.WithLabelValues(mode).Inc()
}
