package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/decoder"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/mel"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/model"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tokenizer"
)

// ErrClosed is returned by Transcribe after Close.
var ErrClosed = errors.New("engine: closed")

// PipelineConfig wires the pieces of a PipelineEngine together.
type PipelineConfig struct {
	Model      model.Model
	Tokenizer  tokenizer.Tokenizer
	Filterbank mel.Filterbank
	Mel        mel.Options
	Decoder    decoder.Options
	Scheduler  scheduler.Options
	// Label identifies the engine in logs, e.g. the model path.
	Label string
}

// PipelineEngine runs PCM → log-mel → normalise → windowed decoding.
// Calls are serialised; the model is not assumed to be safe for concurrent use.
type PipelineEngine struct {
	mu     sync.Mutex
	cfg    PipelineConfig
	log    *slog.Logger
	closed bool
}

// NewPipeline validates cfg and builds a probe decoder so that configuration
// and vocabulary errors surface at construction rather than on first use.
func NewPipeline(cfg PipelineConfig, logger *slog.Logger) (*PipelineEngine, error) {
	if cfg.Model == nil || cfg.Tokenizer == nil {
		return nil, errors.New("engine: model and tokenizer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Filterbank.Validate(mel.Bins(cfg.Mel.FFTSize, cfg.Mel.SpeedUp)); err != nil {
		return nil, err
	}
	if want := cfg.Model.Config().NumMelBins; want > 0 && cfg.Filterbank.NMel != want {
		return nil, fmt.Errorf("%w: filterbank has %d mel bands, model expects %d", mel.ErrFilterbankShape, cfg.Filterbank.NMel, want)
	}

	log := logger.With("component", "engine.pipeline", "model", cfg.Label)
	probe, err := decoder.New(cfg.Model, cfg.Tokenizer, cfg.Decoder, log)
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.New(probe, cfg.Scheduler, log); err != nil {
		return nil, err
	}
	return &PipelineEngine{cfg: cfg, log: log}, nil
}

// Transcribe implements Engine.
func (e *PipelineEngine) Transcribe(ctx context.Context, samples []float32, opts Options, emit func(scheduler.Segment) error) (Transcript, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Transcript{}, ErrClosed
	}

	decOpts := e.cfg.Decoder
	lang := normaliseLanguage(opts.Language, decOpts.Language)
	switch {
	case !decOpts.Multilingual:
		decOpts.Language = ""
		lang = "en"
	case lang == decoder.AutoLanguage:
		decOpts.Language = ""
	default:
		decOpts.Language = lang
	}
	out := Transcript{Language: lang}
	if len(samples) == 0 {
		return out, nil
	}

	dec, err := decoder.New(e.cfg.Model, e.cfg.Tokenizer, decOpts, e.log)
	if err != nil {
		return out, err
	}
	sched, err := scheduler.New(dec, e.cfg.Scheduler, e.log)
	if err != nil {
		return out, err
	}

	features, err := mel.PCMToMel(ctx, samples, e.cfg.Filterbank, e.cfg.Mel)
	if err != nil {
		return out, fmt.Errorf("engine: features: %w", err)
	}
	e.log.Debug("features computed", "samples", len(samples), "frames", features.Cols, "language", lang)

	out.Segments, err = sched.Run(ctx, features, emit)
	out.Stats = sched.Summary()
	return out, err
}

// Close implements Engine. The model is closed when it implements io.Closer.
func (e *PipelineEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if closer, ok := e.cfg.Model.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
