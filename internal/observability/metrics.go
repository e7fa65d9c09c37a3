package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ContextTurns      prometheus.Gauge
	UnseenTurns       prometheus.Gauge
	ExchangeEvents    *prometheus.CounterVec
	ExtractionEvents  *prometheus.CounterVec
	PlaybackEvents    *prometheus.CounterVec
	BoundaryErrors    *prometheus.CounterVec
	CoreMemoryRecords prometheus.Gauge
	ExchangeLatency   prometheus.Histogram
	ExtractionLatency prometheus.Histogram
	FirstAudioLatency prometheus.Histogram
	WSMessages        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ContextTurns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_turns",
			Help:      "Turns currently retained in the context buffer.",
		}),
		UnseenTurns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_unseen_turns",
			Help:      "Turns not yet consumed by a successful model prompt.",
		}),
		ExchangeEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_events_total",
			Help:      "Conversational exchange events by type.",
		}, []string{"event"}),
		ExtractionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_events_total",
			Help:      "Memory extraction events by type.",
		}, []string{"event"}),
		PlaybackEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_events_total",
			Help:      "Audio playback events by type.",
		}, []string{"event"}),
		BoundaryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_errors_total",
			Help:      "External boundary errors by boundary and code.",
		}, []string{"boundary", "code"}),
		CoreMemoryRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "core_memory_records",
			Help:      "Records currently in the core memory store.",
		}),
		ExchangeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_latency_ms",
			Help:      "End-to-end latency of a conversational exchange in milliseconds.",
			Buckets:   []float64{200, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_latency_ms",
			Help:      "Latency of a memory extraction pass in milliseconds.",
			Buckets:   []float64{500, 1000, 2000, 5000, 10000, 30000},
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency to the first played assistant audio frame in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveExchangeLatency(d time.Duration) {
	m.ExchangeLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveExtractionLatency(d time.Duration) {
	m.ExtractionLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
