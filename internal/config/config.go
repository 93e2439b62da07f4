package config

import (
	"fmt"
	"strings"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	DefaultModelKind  = "full"
	DefaultLanguage   = "auto"
	DefaultTask       = "transcribe"
	DefaultLogLevel   = "info"

	// ClientLanguage defers the language choice to request metadata.
	ClientLanguage = "client"
)

// Config captures bootstrap configuration merged from an optional YAML file,
// the JSON payload in NUPI_MODULE_CONFIG and individual environment variables.
// Pointer fields are optional; nil keeps the decoder default.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`

	ModelKind      string `yaml:"model_kind" json:"model_kind"`
	ModelPath      string `yaml:"model_path" json:"model_path"`
	TokenizerPath  string `yaml:"tokenizer_path" json:"tokenizer_path"`
	MelFiltersPath string `yaml:"mel_filters_path" json:"mel_filters_path"`
	UseStubEngine  bool   `yaml:"use_stub_engine" json:"use_stub_engine"`

	Language       string `yaml:"language" json:"language"`
	Task           string `yaml:"task" json:"task"`
	Timestamps     bool   `yaml:"timestamps" json:"timestamps"`
	Multilingual   *bool  `yaml:"multilingual" json:"multilingual"`
	DetectLanguage *bool  `yaml:"detect_language" json:"detect_language"`

	// Threads sizes the spectrogram worker pool; nil or 0 means GOMAXPROCS.
	Threads *int    `yaml:"threads" json:"threads"`
	SpeedUp bool    `yaml:"speed_up" json:"speed_up"`
	Seed    *uint64 `yaml:"seed" json:"seed"`

	Temperatures              []float64 `yaml:"temperatures" json:"temperatures"`
	CompressionRatioThreshold *float64  `yaml:"compression_ratio_threshold" json:"compression_ratio_threshold"`
	LogprobThreshold          *float64  `yaml:"logprob_threshold" json:"logprob_threshold"`
	NoSpeechThreshold         *float64  `yaml:"no_speech_threshold" json:"no_speech_threshold"`
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.ModelKind == "" {
		c.ModelKind = DefaultModelKind
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	c.Task = strings.ToLower(strings.TrimSpace(c.Task))
	switch c.Task {
	case "":
		c.Task = DefaultTask
	case "transcribe", "translate":
	default:
		return fmt.Errorf("config: task must be transcribe or translate, got %q", c.Task)
	}

	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
	}
	if c.Threads != nil && *c.Threads == 0 {
		c.Threads = nil
	}
	for i, t := range c.Temperatures {
		if t < 0 {
			return fmt.Errorf("config: temperatures must be >= 0, got %v", t)
		}
		if i > 0 && t < c.Temperatures[i-1] {
			return fmt.Errorf("config: temperatures must be ascending, got %v", c.Temperatures)
		}
	}
	if c.NoSpeechThreshold != nil && (*c.NoSpeechThreshold < 0 || *c.NoSpeechThreshold > 1) {
		return fmt.Errorf("config: no_speech_threshold must be within [0, 1], got %v", *c.NoSpeechThreshold)
	}
	return nil
}
