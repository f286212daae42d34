package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the Prometheus metrics shared by all sessions of a server.
type Collectors struct {
	ActiveSessions prometheus.Gauge
	Sessions       *prometheus.CounterVec // by outcome
	Utterances     *prometheus.CounterVec // by disposition
	StageErrors    *prometheus.CounterVec // by stage
	Chunks         prometheus.Counter

	GenerationLatency prometheus.Histogram
	FirstAudioLatency prometheus.Histogram
	PlaybackDuration  prometheus.Histogram
	PaceDelay         prometheus.Histogram
}

// NewCollectors creates and registers the collectors on reg. A nil reg
// creates unregistered collectors.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	latency := prometheus.ExponentialBuckets(0.05, 2, 10) // 50ms to ~25s

	return &Collectors{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_active_sessions",
			Help: "Current number of streaming sessions",
		}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_sessions_total",
			Help: "Sessions ended, by outcome",
		}, []string{"outcome"}),
		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_utterances_total",
			Help: "Finalized utterances, by how they were handled",
		}, []string{"disposition"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_errors_total",
			Help: "Pipeline runs aborted, by failing stage",
		}, []string{"stage"}),
		Chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_audio_chunks_total",
			Help: "Audio chunks delivered to clients",
		}),
		GenerationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_generation_latency_seconds",
			Help:    "Time from utterance end to first generated token",
			Buckets: latency,
		}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_first_audio_latency_seconds",
			Help:    "Time from utterance end to first synthesized audio",
			Buckets: latency,
		}),
		PlaybackDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_chunk_playback_seconds",
			Help:    "Playback duration of synthesized chunks",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		PaceDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_pace_delay_seconds",
			Help:    "Delay applied after each chunk to match playback",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
}
