package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from an optional YAML file and environment
// variables. Tests can override Lookup and ReadFile to inject deterministic
// inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load merges defaults, the file named by NUPI_CONFIG_FILE, the
// NUPI_MODULE_CONFIG JSON payload and NUPI_* overrides, in that order, and
// validates the result.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("NUPI_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		raw, err := l.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if raw, ok := l.Lookup("NUPI_MODULE_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode NUPI_MODULE_CONFIG: %w", err)
		}
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_METRICS_ADDR", &cfg.MetricsAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NUPI_MODEL_KIND", &cfg.ModelKind)
	overrideString(l.Lookup, "NUPI_MODEL_PATH", &cfg.ModelPath)
	overrideString(l.Lookup, "NUPI_TOKENIZER_PATH", &cfg.TokenizerPath)
	overrideString(l.Lookup, "NUPI_MEL_FILTERS_PATH", &cfg.MelFiltersPath)
	overrideString(l.Lookup, "NUPI_LANGUAGE_HINT", &cfg.Language)
	overrideString(l.Lookup, "NUPI_TASK", &cfg.Task)

	var err error
	if cfg.UseStubEngine, err = overrideBool(l.Lookup, "NUPI_ADAPTER_USE_STUB_ENGINE", cfg.UseStubEngine); err != nil {
		return Config{}, err
	}
	if cfg.Timestamps, err = overrideBool(l.Lookup, "NUPI_TIMESTAMPS", cfg.Timestamps); err != nil {
		return Config{}, err
	}
	if cfg.SpeedUp, err = overrideBool(l.Lookup, "NUPI_SPEED_UP", cfg.SpeedUp); err != nil {
		return Config{}, err
	}
	if err := overrideBoolPtr(l.Lookup, "NUPI_MULTILINGUAL", &cfg.Multilingual); err != nil {
		return Config{}, err
	}
	if err := overrideBoolPtr(l.Lookup, "NUPI_DETECT_LANGUAGE", &cfg.DetectLanguage); err != nil {
		return Config{}, err
	}
	if value, ok := lookupTrimmed(l.Lookup, "NUPI_THREADS"); ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUPI_THREADS: %w", err)
		}
		cfg.Threads = &n
	}
	if value, ok := lookupTrimmed(l.Lookup, "NUPI_SEED"); ok {
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUPI_SEED: %w", err)
		}
		cfg.Seed = &seed
	}
	if value, ok := lookupTrimmed(l.Lookup, "NUPI_TEMPERATURES"); ok {
		temps, err := parseFloatList(value)
		if err != nil {
			return Config{}, fmt.Errorf("config: NUPI_TEMPERATURES: %w", err)
		}
		cfg.Temperatures = temps
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookupTrimmed(lookup, key); ok {
		*target = value
	}
}

func overrideBool(lookup func(string) (string, bool), key string, current bool) (bool, error) {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return current, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return current, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func overrideBoolPtr(lookup func(string) (string, bool), key string, target **bool) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = &b
	return nil
}

func parseFloatList(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
