package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sonora-labs/sonora-go/internal/core"
)

// prometheusMetrics implements core.Metrics so every link's handshake,
// packet and channel activity is exported without the core package
// importing Prometheus itself.
type prometheusMetrics struct {
	packetsSent        prometheus.Counter
	packetsReceived    prometheus.Counter
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
	handshakesTotal    prometheus.Counter
	handshakeDuration  prometheus.Histogram
	channelsOpen       prometheus.Gauge
	channelsTotal      prometheus.Counter
	puzzleIterations   prometheus.Histogram
	puzzleSolveSeconds prometheus.Histogram
}

// NewPrometheusMetrics builds a core.Metrics implementation that
// records every handshake, packet and channel event to reg.
func NewPrometheusMetrics(reg prometheus.Registerer) core.Metrics {
	return newPrometheusMetrics(reg)
}

func newPrometheusMetrics(reg prometheus.Registerer) *prometheusMetrics {
	factory := promauto.With(reg)
	return &prometheusMetrics{
		packetsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonora_packets_sent_total",
			Help: "Total number of framed packets sent.",
		}),
		packetsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonora_packets_received_total",
			Help: "Total number of framed packets received.",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonora_bytes_sent_total",
			Help: "Total bytes written to the wire, including frame overhead.",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonora_bytes_received_total",
			Help: "Total bytes read from the wire, including frame overhead.",
		}),
		handshakesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonora_handshakes_completed_total",
			Help: "Total number of handshakes that completed successfully.",
		}),
		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonora_handshake_duration_seconds",
			Help:    "Wall-clock duration of a complete handshake.",
			Buckets: prometheus.DefBuckets,
		}),
		channelsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sonora_channels_open",
			Help: "Number of currently open channels across all links.",
		}),
		channelsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sonora_channels_opened_total",
			Help: "Total number of channels ever opened.",
		}),
		puzzleIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonora_puzzle_iterations",
			Help:    "Brute-force iterations spent solving the handshake puzzle.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}),
		puzzleSolveSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sonora_puzzle_solve_seconds",
			Help:    "Wall-clock time spent solving the handshake puzzle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *prometheusMetrics) PacketSent(bytes int) {
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *prometheusMetrics) PacketReceived(bytes int) {
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
}

func (m *prometheusMetrics) HandshakeCompleted(d time.Duration) {
	m.handshakesTotal.Inc()
	m.handshakeDuration.Observe(d.Seconds())
}

func (m *prometheusMetrics) ChannelOpened() {
	m.channelsOpen.Inc()
	m.channelsTotal.Inc()
}

func (m *prometheusMetrics) ChannelClosed() {
	m.channelsOpen.Dec()
}

func (m *prometheusMetrics) PuzzleSolved(iterations uint64, d time.Duration) {
	m.puzzleIterations.Observe(float64(iterations))
	m.puzzleSolveSeconds.Observe(d.Seconds())
}

var _ core.Metrics = (*prometheusMetrics)(nil)
