package engine

import (
	"log/slog"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/model"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tokenizer"
)

// NewStubEngine returns a pipeline over the deterministic stub model. The full
// front end and decoder run; only the forward passes are scripted. When the
// stub vocabulary cannot honour cfg, the defaults are used instead.
func NewStubEngine(cfg config.Config, logger *slog.Logger) (*PipelineEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("adapter", adapterinfo.Info.Slug)

	eng, err := newStubPipeline(cfg, logger)
	if err == nil {
		return eng, nil
	}
	logger.Warn("stub engine ignoring configuration", "error", err)
	return newStubPipeline(config.Config{}, logger)
}

func newStubPipeline(cfg config.Config, logger *slog.Logger) (*PipelineEngine, error) {
	pcfg, err := pipelineConfig(cfg, model.NewStub(model.DefaultStubScript()), tokenizer.StubVocabulary())
	if err != nil {
		return nil, err
	}
	pcfg.Label = "stub"
	return NewPipeline(pcfg, logger)
}
