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
	PlaybackSessions  *prometheus.CounterVec
	PlaybackBytes     prometheus.Counter
	Stalls            prometheus.Counter
	FallbackOutcomes  *prometheus.CounterVec
	SpeakPath         *prometheus.CounterVec
	EngineErrors      *prometheus.CounterVec
	FirstAudioLatency prometheus.Histogram
	DrainWait         prometheus.Histogram
	ListenDuration    prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PlaybackSessions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_sessions_total",
			Help:      "Playback sessions by exit reason.",
		}, []string{"exit_reason"}),
		PlaybackBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_bytes_total",
			Help:      "PCM bytes written to the output device.",
		}),
		Stalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_stalls_total",
			Help:      "Streaming sessions abandoned due to inter-chunk stalls.",
		}),
		FallbackOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_outcomes_total",
			Help:      "Fallback confirmation outcomes after a streaming failure.",
		}, []string{"outcome"}),
		SpeakPath: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speak_path_total",
			Help:      "Speak requests by delivery path.",
		}, []string{"path"}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Upstream engine errors by engine and operation.",
		}, []string{"engine", "op"}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from speak request to first device write in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
		DrainWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_wait_ms",
			Help:      "Calculated post-stream drain wait in milliseconds.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 1500, 2500},
		}),
		ListenDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listen_duration_seconds",
			Help:      "Microphone capture duration per listen in seconds.",
			Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 10, 15},
		}),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveDrainWait(d time.Duration) {
	m.DrainWait.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
