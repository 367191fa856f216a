// Package metrics exposes the trading core's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the exchange metrics.
type Collector struct {
	registry *prometheus.Registry

	OrdersTotal      *prometheus.CounterVec
	OrderRejects     *prometheus.CounterVec
	TradesTotal      *prometheus.CounterVec
	TradeVolume      *prometheus.CounterVec
	BookDepth        *prometheus.GaugeVec
	SpreadBps        *prometheus.GaugeVec
	SessionsActive   prometheus.Gauge
	APIRequestsTotal *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Orders submitted, by pair, side and final status",
		}, []string{"pair", "side", "status"}),
		OrderRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_order_rejects_total",
			Help: "Order rejections by code",
		}, []string{"pair", "code"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Executed trades by pair",
		}, []string{"pair"}),
		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trade_volume_base_units",
			Help: "Traded base volume by pair, in fixed-point base units",
		}, []string{"pair"}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_book_depth_orders",
			Help: "Resting orders per pair and side",
		}, []string{"pair", "side"}),
		SpreadBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_spread_bps",
			Help: "Bid-ask spread in basis points of the mid price",
		}, []string{"pair"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exchange_ws_sessions_active",
			Help: "Attached streaming sessions",
		}),
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_api_requests_total",
			Help: "REST requests by route and status class",
		}, []string{"route", "status"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exchange_api_request_seconds",
			Help:    "REST request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	c.registry.MustRegister(
		c.OrdersTotal, c.OrderRejects, c.TradesTotal, c.TradeVolume,
		c.BookDepth, c.SpreadBps, c.SessionsActive,
		c.APIRequestsTotal, c.APILatency,
	)
	return c
}

// Handler serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
