package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/decoder"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/mel"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/model"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tokenizer"
)

// New resolves the configured model and returns an Engine instance. When the
// model, tokenizer or filterbank cannot be loaded the stub engine is returned
// together with the error, so the adapter can keep serving in degraded mode.
func New(cfg config.Config, backends model.Backends, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.UseStubEngine {
		logger.Warn("stub engine forced by configuration")
		return NewStubEngine(cfg, logger)
	}

	eng, err := newModelEngine(cfg, backends, logger)
	if err != nil {
		logger.Warn("model engine unavailable; using stub engine", "error", err, "model_path", cfg.ModelPath)
		stub, stubErr := NewStubEngine(cfg, logger)
		if stubErr != nil {
			return nil, errors.Join(err, stubErr)
		}
		return stub, err
	}
	logger.Info("model engine ready", "model_kind", cfg.ModelKind, "model_path", cfg.ModelPath)
	return eng, nil
}

func newModelEngine(cfg config.Config, backends model.Backends, logger *slog.Logger) (*PipelineEngine, error) {
	kind, err := model.ParseKind(cfg.ModelKind)
	if err != nil {
		return nil, err
	}
	m, err := model.Open(kind, cfg.ModelPath, backends)
	if err != nil {
		return nil, err
	}

	var tok tokenizer.Tokenizer = tokenizer.StubVocabulary()
	if kind != model.KindStub {
		if tok, err = loadTokenizer(cfg.TokenizerPath); err != nil {
			return nil, err
		}
	}

	pcfg, err := pipelineConfig(cfg, m, tok)
	if err != nil {
		return nil, err
	}
	pcfg.Label = cfg.ModelPath
	return NewPipeline(pcfg, logger)
}

func pipelineConfig(cfg config.Config, m model.Model, tok tokenizer.Tokenizer) (PipelineConfig, error) {
	decOpts, err := DecoderOptions(cfg)
	if err != nil {
		return PipelineConfig{}, err
	}

	melOpts := mel.DefaultOptions()
	melOpts.SpeedUp = cfg.SpeedUp
	if cfg.Threads != nil {
		melOpts.Workers = *cfg.Threads
	}

	fb, err := loadFilterbank(cfg.MelFiltersPath, m.Config().NumMelBins, melOpts)
	if err != nil {
		return PipelineConfig{}, err
	}

	schedOpts := scheduler.DefaultOptions()
	schedOpts.NoSpeechThreshold = decOpts.NoSpeechThreshold
	schedOpts.LogprobThreshold = decOpts.LogprobThreshold

	return PipelineConfig{
		Model:      m,
		Tokenizer:  tok,
		Filterbank: fb,
		Mel:        melOpts,
		Decoder:    decOpts,
		Scheduler:  schedOpts,
	}, nil
}

// DecoderOptions maps configuration onto decoder options; unset fields keep
// the decoder defaults.
func DecoderOptions(cfg config.Config) (decoder.Options, error) {
	opts := decoder.DefaultOptions()
	task, err := decoder.ParseTask(cfg.Task)
	if err != nil {
		return decoder.Options{}, err
	}
	opts.Task = task
	opts.Timestamps = cfg.Timestamps
	if lang := normaliseLanguage(cfg.Language, ""); lang != decoder.AutoLanguage && lang != config.ClientLanguage {
		opts.Language = lang
	}
	if cfg.Multilingual != nil {
		opts.Multilingual = *cfg.Multilingual
	}
	if cfg.DetectLanguage != nil {
		opts.DetectLanguage = *cfg.DetectLanguage
	}
	if !opts.Multilingual {
		opts.Language = ""
	}
	if cfg.Seed != nil {
		opts.Seed = *cfg.Seed
	}
	if len(cfg.Temperatures) > 0 {
		opts.Temperatures = append([]float64(nil), cfg.Temperatures...)
	}
	if cfg.CompressionRatioThreshold != nil {
		opts.CompressionRatioThreshold = *cfg.CompressionRatioThreshold
	}
	if cfg.LogprobThreshold != nil {
		opts.LogprobThreshold = *cfg.LogprobThreshold
	}
	if cfg.NoSpeechThreshold != nil {
		opts.NoSpeechThreshold = *cfg.NoSpeechThreshold
	}
	return opts, nil
}

func loadTokenizer(path string) (*tokenizer.Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("engine: tokenizer path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("engine: open tokenizer: %w", err)
	}
	defer f.Close()
	return tokenizer.LoadVocabulary(f)
}

// loadFilterbank reads a serialised filterbank, or builds a Slaney bank when
// no path is configured. With speed-up the bank covers half as many bins.
func loadFilterbank(path string, nMel int, opts mel.Options) (mel.Filterbank, error) {
	if strings.TrimSpace(path) == "" {
		fftSize := opts.FFTSize
		if opts.SpeedUp {
			fftSize /= 2
		}
		return mel.NewSlaneyFilterbank(mel.SampleRate, fftSize, nMel), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return mel.Filterbank{}, fmt.Errorf("engine: open mel filters: %w", err)
	}
	defer f.Close()
	return mel.LoadFilterbank(f, nMel)
}
