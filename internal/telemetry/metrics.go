package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors mirrored from the Recorder.
type Metrics struct {
	Transcriptions        *prometheus.CounterVec
	ActiveTranscriptions  prometheus.Gauge
	TranscriptionDuration prometheus.Histogram
	AudioSeconds          prometheus.Counter
	Windows               prometheus.Counter
	Segments              prometheus.Counter
	SkippedWindows        prometheus.Counter
	FallbackRetries       prometheus.Counter
	Tokens                prometheus.Counter
	SegmentTemperature    prometheus.Histogram
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_transcriptions_total",
			Help: "Transcription requests by outcome",
		}, []string{"status"}),
		ActiveTranscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whisper_active_transcriptions",
			Help: "Transcriptions currently running",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_transcription_duration_seconds",
			Help:    "Wall-clock time spent per transcription",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		AudioSeconds: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_audio_seconds_total",
			Help: "Seconds of audio covered by decoded windows",
		}),
		Windows: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_windows_total",
			Help: "Feature windows decoded",
		}),
		Segments: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_segments_total",
			Help: "Transcript segments emitted",
		}),
		SkippedWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_skipped_windows_total",
			Help: "Windows discarded as silence",
		}),
		FallbackRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_fallback_retries_total",
			Help: "Decode attempts beyond the first temperature",
		}),
		Tokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "whisper_tokens_total",
			Help: "Tokens in emitted segments, prompt included",
		}),
		SegmentTemperature: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_segment_temperature",
			Help:    "Temperature at which each emitted segment was accepted",
			Buckets: prometheus.LinearBuckets(0, 0.2, 6),
		}),
	}
}
