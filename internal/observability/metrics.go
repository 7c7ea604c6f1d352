package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the server. A nil
// *Metrics is valid everywhere and records nothing, so components never
// have to care whether the operator enabled the endpoint.
type Metrics struct {
	PacketsSentTotal  *prometheus.CounterVec
	SendErrorsTotal   prometheus.Counter
	RateLimit         prometheus.Gauge
	PeersTracked      prometheus.Gauge
	ChunksServedTotal *prometheus.CounterVec
	ListingsSentTotal prometheus.Counter
	PongsSentTotal    prometheus.Counter
}

// NewMetrics creates and registers the server metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		PacketsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lancast_packets_sent_total",
				Help: "Datagrams broadcast, by lane",
			},
			[]string{"lane"},
		),
		SendErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lancast_send_errors_total",
				Help: "Datagrams dropped on socket errors",
			},
		),
		RateLimit: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lancast_rate_limit_packets_per_second",
				Help: "Current adaptive rate limit",
			},
		),
		PeersTracked: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lancast_peers_tracked",
				Help: "Peers with live delivery accounting",
			},
		),
		ChunksServedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lancast_chunks_served_total",
				Help: "File chunks broadcast, by trigger",
			},
			[]string{"trigger"},
		),
		ListingsSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lancast_listings_sent_total",
				Help: "Listing fragments broadcast",
			},
		),
		PongsSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lancast_pongs_sent_total",
				Help: "Pong replies sent",
			},
		),
	}
}

// RecordPacketSent counts one broadcast datagram on the given lane.
func (m *Metrics) RecordPacketSent(lane string) {
	if m == nil {
		return
	}
	m.PacketsSentTotal.WithLabelValues(lane).Inc()
}

// RecordSendError counts a datagram dropped on a socket error.
func (m *Metrics) RecordSendError() {
	if m == nil {
		return
	}
	m.SendErrorsTotal.Inc()
}

// SetRateLimit publishes the limiter's current rate.
func (m *Metrics) SetRateLimit(pps int) {
	if m == nil {
		return
	}
	m.RateLimit.Set(float64(pps))
}

// SetPeersTracked publishes the size of the delivery accounting table.
func (m *Metrics) SetPeersTracked(n int) {
	if m == nil {
		return
	}
	m.PeersTracked.Set(float64(n))
}

// RecordChunkServed counts a chunk broadcast; trigger is "carousel" or
// "request".
func (m *Metrics) RecordChunkServed(trigger string) {
	if m == nil {
		return
	}
	m.ChunksServedTotal.WithLabelValues(trigger).Inc()
}

// RecordListingSent counts one listing fragment broadcast.
func (m *Metrics) RecordListingSent() {
	if m == nil {
		return
	}
	m.ListingsSentTotal.Inc()
}

// RecordPongSent counts one pong reply.
func (m *Metrics) RecordPongSent() {
	if m == nil {
		return
	}
	m.PongsSentTotal.Inc()
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
