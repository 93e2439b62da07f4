package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
)

// Recorder tracks adapter-level transcription totals and mirrors them into
// Prometheus collectors.
type Recorder struct {
	log     *slog.Logger
	metrics *Metrics

	totalTranscriptions  atomic.Uint64
	failedTranscriptions atomic.Uint64
	activeTranscriptions atomic.Int64
	totalWindows         atomic.Uint64
	totalSegments        atomic.Uint64
	totalSkipped         atomic.Uint64
	totalRetries         atomic.Uint64
	totalTokens          atomic.Uint64
	totalSamples         atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalTranscriptions  uint64
	FailedTranscriptions uint64
	ActiveTranscriptions int64
	TotalWindows         uint64
	TotalSegments        uint64
	TotalSkipped         uint64
	TotalRetries         uint64
	TotalTokens          uint64
	TotalSamples         uint64
}

// NewRecorder constructs a Recorder. metrics may be nil.
func NewRecorder(logger *slog.Logger, metrics *Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log:     logger.With("component", "telemetry.Recorder"),
		metrics: metrics,
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalTranscriptions:  r.totalTranscriptions.Load(),
		FailedTranscriptions: r.failedTranscriptions.Load(),
		ActiveTranscriptions: r.activeTranscriptions.Load(),
		TotalWindows:         r.totalWindows.Load(),
		TotalSegments:        r.totalSegments.Load(),
		TotalSkipped:         r.totalSkipped.Load(),
		TotalRetries:         r.totalRetries.Load(),
		TotalTokens:          r.totalTokens.Load(),
		TotalSamples:         r.totalSamples.Load(),
	}
}

// TranscriptionMetrics accumulates statistics for a single transcription.
type TranscriptionMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	requestID string
	metadata  map[string]string

	started  time.Time
	samples  int
	segments int
	tokens   int
	stats    scheduler.Stats
	closed   atomic.Bool
}

// StartTranscription initialises a TranscriptionMetrics instance bound to the recorder.
func (r *Recorder) StartTranscription(requestID string, metadata map[string]string) *TranscriptionMetrics {
	if r == nil {
		return nil
	}

	clonedMetadata := cloneMetadata(metadata)
	log := r.log.With("request_id", requestID)
	if len(clonedMetadata) > 0 {
		log = log.With("metadata", clonedMetadata)
	}

	r.totalTranscriptions.Add(1)
	r.activeTranscriptions.Add(1)
	if m := r.metrics; m != nil {
		m.ActiveTranscriptions.Inc()
	}

	return &TranscriptionMetrics{
		recorder:  r,
		log:       log,
		requestID: requestID,
		metadata:  clonedMetadata,
		started:   time.Now(),
	}
}

// RecordAudio counts decoded input samples.
func (t *TranscriptionMetrics) RecordAudio(samples int) {
	if t == nil || samples <= 0 {
		return
	}
	t.samples += samples
	t.recorder.totalSamples.Add(uint64(samples))
	t.log.Debug("audio decoded", "samples", samples)
}

// RecordSegment stores statistics for an emitted segment.
func (t *TranscriptionMetrics) RecordSegment(seg scheduler.Segment) {
	if t == nil {
		return
	}
	t.segments++
	t.tokens += len(seg.Tokens)
	t.recorder.totalSegments.Add(1)
	t.recorder.totalTokens.Add(uint64(len(seg.Tokens)))
	if m := t.recorder.metrics; m != nil {
		m.Segments.Inc()
		m.Tokens.Add(float64(len(seg.Tokens)))
		m.SegmentTemperature.Observe(seg.Temperature)
	}

	t.log.Debug("segment emitted",
		"start", seg.Start,
		"duration", seg.Duration,
		"temperature", seg.Temperature,
		"chars", len(seg.Text),
		"runes", utf8.RuneCountInString(seg.Text),
	)
}

// RecordStats folds the scheduler summary into the totals.
func (t *TranscriptionMetrics) RecordStats(stats scheduler.Stats) {
	if t == nil {
		return
	}
	t.stats = stats
	retries := max(stats.Attempts-stats.Windows, 0)
	t.recorder.totalWindows.Add(uint64(stats.Windows))
	t.recorder.totalSkipped.Add(uint64(stats.Skipped))
	t.recorder.totalRetries.Add(uint64(retries))
	if m := t.recorder.metrics; m != nil {
		m.Windows.Add(float64(stats.Windows))
		m.SkippedWindows.Add(float64(stats.Skipped))
		m.FallbackRetries.Add(float64(retries))
		m.AudioSeconds.Add(stats.Duration)
	}
}

// Finish logs a summary and updates active counters. Only the first call counts.
func (t *TranscriptionMetrics) Finish(err error) {
	if t == nil {
		return
	}
	if !t.closed.CompareAndSwap(false, true) {
		return
	}

	r := t.recorder
	defer r.activeTranscriptions.Add(-1)

	elapsed := time.Since(t.started)
	status := "ok"
	if err != nil {
		status = "error"
		r.failedTranscriptions.Add(1)
	}
	if m := r.metrics; m != nil {
		m.ActiveTranscriptions.Dec()
		m.Transcriptions.WithLabelValues(status).Inc()
		m.TranscriptionDuration.Observe(elapsed.Seconds())
	}

	args := []any{
		"duration_ms", elapsed.Milliseconds(),
		"samples", t.samples,
		"windows", t.stats.Windows,
		"segments", t.segments,
		"skipped", t.stats.Skipped,
		"tokens", t.tokens,
	}
	if err != nil {
		t.log.Error("transcription completed with error", append(args, "error", err)...)
		return
	}
	t.log.Info("transcription completed", args...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
