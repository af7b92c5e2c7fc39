// Package metrics exposes Prometheus metrics and a /metrics HTTP server
// for the breakout engine.
package metrics

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	TicksTotal     prometheus.Counter
	TicksDropped   prometheus.Counter // queue full
	TicksMalformed prometheus.Counter // missing symbol
	WSReconnects   prometheus.Counter
	QuoteFallbacks prometheus.Counter // REST quote used because cache was stale/absent

	OrdersPlaced    prometheus.Counter
	OrdersTriggered prometheus.Counter
	OrdersCancelled prometheus.Counter
	OrdersExpired   prometheus.Counter

	TradesEntered prometheus.Counter
	TradesExited  *prometheus.CounterVec // labels: cause
	PartialExits  prometheus.Counter
	TradePnL      prometheus.Gauge // realized P&L of the last closed trade

	StreamConnected prometheus.Gauge // 0/1
	MarketOpen      prometheus.Gauge // 0/1
}

// NewMetrics registers and returns all engine metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Total ticks received from the data WebSocket",
		}),
		TicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_dropped_total",
			Help: "Ticks dropped because the tick queue was full",
		}),
		TicksMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_malformed_total",
			Help: "Tick frames dropped for missing symbol or price",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ws_reconnects_total",
			Help: "WebSocket reconnection attempts",
		}),
		QuoteFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_quote_fallbacks_total",
			Help: "REST quote calls made because stream data was stale or absent",
		}),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_placed_total",
			Help: "Trigger orders placed in the order book",
		}),
		OrdersTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_triggered_total",
			Help: "Trigger orders that fired",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_cancelled_total",
			Help: "Trigger orders cancelled",
		}),
		OrdersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_orders_expired_total",
			Help: "Trigger orders expired before triggering",
		}),
		TradesEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_trades_entered_total",
			Help: "Positions entered",
		}),
		TradesExited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_trades_exited_total",
			Help: "Positions exited, by cause",
		}, []string{"cause"}),
		PartialExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_partial_exits_total",
			Help: "Partial exit rules fired",
		}),
		TradePnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_trade_pnl_rupees",
			Help: "Realized net P&L of the most recently closed trade",
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_stream_connected",
			Help: "1 when the data WebSocket is connected",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_market_open",
			Help: "1 during NSE trading hours",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal, m.TicksDropped, m.TicksMalformed, m.WSReconnects,
		m.QuoteFallbacks,
		m.OrdersPlaced, m.OrdersTriggered, m.OrdersCancelled, m.OrdersExpired,
		m.TradesEntered, m.TradesExited, m.PartialExits, m.TradePnL,
		m.StreamConnected, m.MarketOpen,
	)
	return m
}

// Server serves /metrics.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates the metrics HTTP server.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
