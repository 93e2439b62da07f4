package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/audio"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/config"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/engine"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/mel"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/model"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
)

// CLI transcribes a single 16 kHz WAV file offline.
type CLI struct {
	Input string `arg:"" type:"existingfile" help:"16 kHz WAV file to transcribe."`

	Config        string  `type:"path" help:"YAML configuration file (same format as NUPI_CONFIG_FILE)."`
	ModelKind     string  `help:"Model kind (stub, full)." env:"NUPI_MODEL_KIND"`
	ModelPath     string  `type:"path" help:"Model weights." env:"NUPI_MODEL_PATH"`
	TokenizerPath string  `type:"path" help:"tokenizer.json vocabulary." env:"NUPI_TOKENIZER_PATH"`
	MelFilters    string  `type:"path" help:"Serialised mel filterbank; a Slaney bank is built when empty." env:"NUPI_MEL_FILTERS_PATH"`
	Language      string  `help:"Language code, or auto." env:"NUPI_LANGUAGE_HINT"`
	Task          string  `help:"transcribe or translate." env:"NUPI_TASK"`
	Seed          *uint64 `help:"Sampling seed."`
	SpeedUp       bool    `help:"Halve the spectrogram resolution."`
	Stub          bool    `help:"Use the stub engine."`

	Format   string `enum:"text,json,srt" default:"text" short:"f" help:"Output format (text, json, srt)."`
	LogLevel string `default:"warn" help:"Log level."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("transcribe"),
		kong.Description("Offline transcription with "+adapterinfo.Info.Name+" "+adapterinfo.Version()+"."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(cli.Run(ctx, os.Stdout))
}

// Run loads the configuration, decodes the input and writes the transcript to w.
func (c *CLI) Run(ctx context.Context, w io.Writer) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}))

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg, model.Backends{}, logger)
	if err != nil {
		if eng != nil {
			eng.Close()
		}
		return fmt.Errorf("model engine unavailable (use --stub for the stub engine): %w", err)
	}
	defer eng.Close()

	f, err := os.Open(c.Input)
	if err != nil {
		return err
	}
	defer f.Close()
	samples, err := audio.DecodeWAV(f, mel.SampleRate)
	if err != nil {
		return err
	}

	out, err := eng.Transcribe(ctx, samples, engine.Options{Language: cfg.Language}, nil)
	if err != nil {
		return err
	}
	logger.Info("transcribed", "segments", len(out.Segments), "windows", out.Stats.Windows, "language", out.Language)

	switch c.Format {
	case "json":
		return renderJSON(w, out)
	case "srt":
		return renderSRT(w, out.Segments)
	default:
		_, err := fmt.Fprintln(w, out.Text())
		return err
	}
}

func (c *CLI) loadConfig() (config.Config, error) {
	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			if key == "NUPI_CONFIG_FILE" && c.Config != "" {
				return c.Config, true
			}
			return os.LookupEnv(key)
		},
	}
	cfg, err := loader.Load()
	if err != nil {
		return config.Config{}, err
	}

	set := func(target *string, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*target = value
		}
	}
	set(&cfg.ModelKind, c.ModelKind)
	set(&cfg.ModelPath, c.ModelPath)
	set(&cfg.TokenizerPath, c.TokenizerPath)
	set(&cfg.MelFiltersPath, c.MelFilters)
	set(&cfg.Language, c.Language)
	set(&cfg.Task, c.Task)
	if c.Seed != nil {
		cfg.Seed = c.Seed
	}
	cfg.SpeedUp = cfg.SpeedUp || c.SpeedUp
	cfg.UseStubEngine = cfg.UseStubEngine || c.Stub || cfg.ModelPath == ""
	if cfg.Language == config.ClientLanguage {
		cfg.Language = config.DefaultLanguage
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func renderJSON(w io.Writer, out engine.Transcript) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Text     string              `json:"text"`
		Language string              `json:"language"`
		Segments []scheduler.Segment `json:"segments"`
	}{out.Text(), out.Language, out.Segments})
}

// renderSRT writes non-empty segments as SubRip cues.
func renderSRT(w io.Writer, segments []scheduler.Segment) error {
	cue := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cue++
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", cue, srtTimestamp(seg.Start), srtTimestamp(seg.End()), text); err != nil {
			return err
		}
	}
	return nil
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
