// Package scheduler walks a long log-mel feature matrix in fixed windows and
// turns each decoded window into a timed transcript segment.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/decoder"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/mel"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
)

// DefaultWindowFrames is the number of feature frames decoded per window (30s).
const DefaultWindowFrames = 3000

// ErrInvalidOptions reports a non-positive window, hop or sample rate.
var ErrInvalidOptions = errors.New("scheduler: invalid options")

// WindowDecoder decodes one feature window. *decoder.Decoder satisfies it.
type WindowDecoder interface {
	DecodeWithFallback(ctx context.Context, features tensor.Matrix) (decoder.Result, error)
}

// Segment is one emitted transcript window. Start and Duration are seconds.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	decoder.Result
}

// End returns the segment end time in seconds.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// Options controls window sizing and the silence-skip rule.
type Options struct {
	WindowFrames      int
	HopLength         int
	SampleRate        int
	NoSpeechThreshold float64
	LogprobThreshold  float64
}

// DefaultOptions matches the Whisper front end.
func DefaultOptions() Options {
	return Options{
		WindowFrames:      DefaultWindowFrames,
		HopLength:         mel.HopLength,
		SampleRate:        mel.SampleRate,
		NoSpeechThreshold: decoder.DefaultNoSpeechThreshold,
		LogprobThreshold:  decoder.DefaultLogprobThreshold,
	}
}

// Stats summarises a Run.
type Stats struct {
	Windows  int
	Emitted  int
	Skipped  int
	Attempts int
	// Duration is the audio covered by all windows, emitted or skipped, in seconds.
	Duration float64
}

// Scheduler is sequential; windows are decoded strictly in order.
type Scheduler struct {
	dec  WindowDecoder
	opts Options
	log  *slog.Logger

	stats Stats
}

// New validates opts and binds the scheduler to a decoder.
func New(d WindowDecoder, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if d == nil {
		return nil, errors.New("scheduler: decoder is required")
	}
	if opts.WindowFrames <= 0 || opts.HopLength <= 0 || opts.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: window=%d hop=%d rate=%d", ErrInvalidOptions, opts.WindowFrames, opts.HopLength, opts.SampleRate)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		dec:  d,
		opts: opts,
		log:  logger.With("component", "scheduler.Scheduler"),
	}, nil
}

// Run decodes features window by window. emit, when non-nil, receives each
// segment as soon as it is produced; an emit error stops the run.
func (s *Scheduler) Run(ctx context.Context, features tensor.Matrix, emit func(Segment) error) ([]Segment, error) {
	s.stats = Stats{}
	total := features.Cols
	var segments []Segment

	for seek := 0; seek < total; {
		if err := ctx.Err(); err != nil {
			return segments, err
		}

		window := min(total-seek, s.opts.WindowFrames)
		start := s.seconds(seek)
		duration := s.seconds(window)

		slice, err := features.Narrow(seek, window)
		if err != nil {
			return segments, fmt.Errorf("scheduler: window at frame %d: %w", seek, err)
		}
		res, err := s.dec.DecodeWithFallback(ctx, slice)
		if err != nil {
			return segments, fmt.Errorf("scheduler: window at %.2fs: %w", start, err)
		}

		seek += window
		s.stats.Windows++
		s.stats.Attempts += res.Attempts
		s.stats.Duration += duration

		if s.silent(res) {
			s.stats.Skipped++
			s.log.Debug("window skipped as silence",
				"start", start,
				"no_speech_prob", res.NoSpeechProb,
				"avg_logprob", res.AvgLogprob,
			)
			continue
		}

		seg := Segment{Start: start, Duration: duration, Result: res}
		segments = append(segments, seg)
		s.stats.Emitted++
		s.log.Debug("segment decoded",
			"start", start,
			"duration", duration,
			"temperature", res.Temperature,
			"text", res.Text,
		)
		if emit != nil {
			if err := emit(seg); err != nil {
				return segments, err
			}
		}
	}
	return segments, nil
}

// Summary returns the statistics of the last Run.
func (s *Scheduler) Summary() Stats {
	return s.stats
}

func (s *Scheduler) silent(res decoder.Result) bool {
	return res.NoSpeechProb > s.opts.NoSpeechThreshold && res.AvgLogprob < s.opts.LogprobThreshold
}

func (s *Scheduler) seconds(frames int) float64 {
	return float64(frames*s.opts.HopLength) / float64(s.opts.SampleRate)
}
