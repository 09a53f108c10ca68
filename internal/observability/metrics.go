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
	ActiveVoiceSessions prometheus.Gauge
	PlaybackRequests    *prometheus.CounterVec
	PlaybackChunks      *prometheus.CounterVec
	VoiceTurns          *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	FirstChunkLatency   prometheus.Histogram

	stageWindow *playbackStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveVoiceSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_voice_sessions",
			Help:      "Number of open voice overlay sessions.",
		}),
		PlaybackRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_requests_total",
			Help:      "Read-aloud playback requests by outcome.",
		}, []string{"outcome"}),
		PlaybackChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_total",
			Help:      "Playback chunks by stage result.",
		}, []string{"result"}),
		VoiceTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_turns_total",
			Help:      "Voice conversation turns by outcome.",
		}, []string{"outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Voice overlay websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		FirstChunkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_latency_ms",
			Help:      "Latency from play request to first audible chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
		stageWindow: newPlaybackStageWindow(256),
	}
}

func (m *Metrics) ObserveFirstChunkLatency(d time.Duration) {
	m.FirstChunkLatency.Observe(float64(d.Milliseconds()))
}

// ObservePlaybackStage records one stage duration in the rolling window used
// by the perf endpoint.
func (m *Metrics) ObservePlaybackStage(stage string, d time.Duration) {
	if m == nil || m.stageWindow == nil {
		return
	}
	m.stageWindow.Observe(stage, float64(d.Microseconds())/1000.0)
}

func (m *Metrics) PlaybackStageSnapshot() PlaybackStageSnapshot {
	if m == nil || m.stageWindow == nil {
		return PlaybackStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stageWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
