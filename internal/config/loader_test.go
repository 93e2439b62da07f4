package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/config"
)

func envLoader(env map[string]string) config.Loader {
	return config.Loader{
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := envLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	assertEqual(t, config.DefaultListenAddr, cfg.ListenAddr, "listen addr")
	assertEqual(t, config.DefaultModelKind, cfg.ModelKind, "model kind")
	assertEqual(t, config.DefaultLanguage, cfg.Language, "language")
	assertEqual(t, config.DefaultTask, cfg.Task, "task")
	assertEqual(t, config.DefaultLogLevel, cfg.LogLevel, "log level")
	assertEqual(t, "", cfg.MetricsAddr, "metrics addr")
	if cfg.UseStubEngine {
		t.Fatalf("expected stub engine disabled by default")
	}
	if cfg.Multilingual != nil || cfg.DetectLanguage != nil {
		t.Fatalf("expected language flags unset by default")
	}
	if cfg.Threads != nil || cfg.Seed != nil {
		t.Fatalf("expected threads and seed unset by default")
	}
	if len(cfg.Temperatures) != 0 {
		t.Fatalf("expected no temperature override, got %v", cfg.Temperatures)
	}
}

func TestLoaderLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whisper.yaml")
	yamlDoc := `
listen_addr: 10.0.0.1:7000
model_kind: quantized
model_path: /models/from-file.gguf
tokenizer_path: /models/tokenizer.json
language: de
task: translate
temperatures: [0, 0.5, 1]
no_speech_threshold: 0.7
threads: 3
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	env := map[string]string{
		"NUPI_CONFIG_FILE":             path,
		"NUPI_MODULE_CONFIG":           `{"model_path":"/models/from-json.gguf","log_level":"debug","seed":7,"multilingual":false}`,
		"NUPI_ADAPTER_LISTEN_ADDR":     "0.0.0.0:6000",
		"NUPI_METRICS_ADDR":            ":9090",
		"NUPI_LOG_LEVEL":               "warn",
		"NUPI_LANGUAGE_HINT":           "",
		"NUPI_MEL_FILTERS_PATH":        "/models/mel_filters.bytes",
		"NUPI_ADAPTER_USE_STUB_ENGINE": "true",
		"NUPI_TIMESTAMPS":              "1",
		"NUPI_SPEED_UP":                "true",
		"NUPI_DETECT_LANGUAGE":         "false",
		"NUPI_THREADS":                 "6",
	}

	cfg, err := envLoader(env).Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, "0.0.0.0:6000", cfg.ListenAddr, "listen addr")
	assertEqual(t, ":9090", cfg.MetricsAddr, "metrics addr")
	assertEqual(t, "warn", cfg.LogLevel, "log level")
	assertEqual(t, "quantized", cfg.ModelKind, "model kind")
	assertEqual(t, "/models/from-json.gguf", cfg.ModelPath, "model path")
	assertEqual(t, "/models/tokenizer.json", cfg.TokenizerPath, "tokenizer path")
	assertEqual(t, "/models/mel_filters.bytes", cfg.MelFiltersPath, "mel filters path")
	assertEqual(t, "de", cfg.Language, "language")
	assertEqual(t, "translate", cfg.Task, "task")
	assertBool(t, true, cfg.UseStubEngine, "use stub engine")
	assertBool(t, true, cfg.Timestamps, "timestamps")
	assertBool(t, true, cfg.SpeedUp, "speed up")
	assertBoolPtr(t, false, cfg.Multilingual, "multilingual")
	assertBoolPtr(t, false, cfg.DetectLanguage, "detect language")
	assertIntPtr(t, 6, cfg.Threads, "threads")

	if cfg.Seed == nil || *cfg.Seed != 7 {
		t.Fatalf("unexpected seed %v", cfg.Seed)
	}
	if len(cfg.Temperatures) != 3 || cfg.Temperatures[1] != 0.5 {
		t.Fatalf("unexpected temperatures %v", cfg.Temperatures)
	}
	if cfg.NoSpeechThreshold == nil || *cfg.NoSpeechThreshold != 0.7 {
		t.Fatalf("unexpected no speech threshold %v", cfg.NoSpeechThreshold)
	}
}

func TestLoaderTemperaturesFromEnv(t *testing.T) {
	cfg, err := envLoader(map[string]string{"NUPI_TEMPERATURES": "0, 0.25,1"}).Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.Temperatures) != 3 || cfg.Temperatures[1] != 0.25 {
		t.Fatalf("unexpected temperatures %v", cfg.Temperatures)
	}
}

func TestLoaderThreadsAuto(t *testing.T) {
	cfg, err := envLoader(map[string]string{"NUPI_MODULE_CONFIG": `{"threads":0}`}).Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Threads != nil {
		t.Fatalf("expected threads nil when configured as 0, got %v", *cfg.Threads)
	}
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad json":           {"NUPI_MODULE_CONFIG": `{"threads":`},
		"negative threads":   {"NUPI_THREADS": "-1"},
		"bad bool":           {"NUPI_TIMESTAMPS": "sometimes"},
		"bad seed":           {"NUPI_SEED": "-3"},
		"unknown task":       {"NUPI_TASK": "summarise"},
		"descending temps":   {"NUPI_TEMPERATURES": "0.4,0.2"},
		"negative temps":     {"NUPI_TEMPERATURES": "-0.1"},
		"bad temps":          {"NUPI_TEMPERATURES": "zero"},
		"no speech too high": {"NUPI_MODULE_CONFIG": `{"no_speech_threshold":1.5}`},
		"empty listen addr":  {"NUPI_MODULE_CONFIG": `{"listen_addr":""}`},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := envLoader(env).Load(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}

func TestLoaderConfigFileErrors(t *testing.T) {
	readErr := errors.New("permission denied")
	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			if key == "NUPI_CONFIG_FILE" {
				return "/etc/whisper.yaml", true
			}
			return "", false
		},
		ReadFile: func(string) ([]byte, error) { return nil, readErr },
	}
	if _, err := loader.Load(); !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}

	loader.ReadFile = func(string) ([]byte, error) { return []byte("threads: [nope"), nil }
	if _, err := loader.Load(); err == nil {
		t.Fatalf("expected YAML decode error")
	}
}

func assertEqual(t *testing.T, want, got, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %q, got %q", label, want, got)
	}
}

func assertBool(t *testing.T, want, got bool, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, got)
	}
}

func assertBoolPtr(t *testing.T, want bool, got *bool, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("unexpected %s: want %v, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, *got)
	}
}

func assertIntPtr(t *testing.T, want int, got *int, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("unexpected %s: want %d, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("unexpected %s: want %d, got %d", label, want, *got)
	}
}
