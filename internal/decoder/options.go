package decoder

import (
	"fmt"
	"strings"
)

const (
	DefaultSeed                      uint64  = 299792458
	DefaultCompressionRatioThreshold float64 = 2.4
	DefaultLogprobThreshold          float64 = -1.0
	DefaultNoSpeechThreshold         float64 = 0.6

	// AutoLanguage requests language detection.
	AutoLanguage = "auto"
)

// DefaultTemperatures is the fallback ladder tried in order.
var DefaultTemperatures = []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0}

// Task selects the task token placed in the prompt.
type Task int

const (
	TaskTranscribe Task = iota
	TaskTranslate
)

func (t Task) String() string {
	if t == TaskTranslate {
		return "translate"
	}
	return "transcribe"
}

// ParseTask maps configuration values onto a Task; empty means transcribe.
func ParseTask(value string) (Task, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "transcribe":
		return TaskTranscribe, nil
	case "translate":
		return TaskTranslate, nil
	default:
		return 0, fmt.Errorf("%w: unknown task %q", ErrConfiguration, value)
	}
}

// Options configures prompt construction and the fallback policy.
type Options struct {
	// Language pins the language tag; empty or "auto" leaves it to detection.
	Language string
	// DetectLanguage enables detection when Language is unset on a multilingual model.
	DetectLanguage bool
	Multilingual   bool
	Task           Task
	// Timestamps keeps timestamp tokens; when false the prompt ends with <|notimestamps|>.
	Timestamps bool

	Seed         uint64
	Temperatures []float64

	CompressionRatioThreshold float64
	LogprobThreshold          float64
	NoSpeechThreshold         float64
}

// DefaultOptions returns the thresholds and temperature ladder used by Whisper.
func DefaultOptions() Options {
	return Options{
		DetectLanguage:            true,
		Multilingual:              true,
		Seed:                      DefaultSeed,
		Temperatures:              append([]float64(nil), DefaultTemperatures...),
		CompressionRatioThreshold: DefaultCompressionRatioThreshold,
		LogprobThreshold:          DefaultLogprobThreshold,
		NoSpeechThreshold:         DefaultNoSpeechThreshold,
	}
}

func (o Options) pinnedLanguage() string {
	lang := strings.ToLower(strings.TrimSpace(o.Language))
	if lang == AutoLanguage {
		return ""
	}
	return lang
}

func (o Options) validate() error {
	if len(o.Temperatures) == 0 {
		return fmt.Errorf("%w: at least one temperature is required", ErrConfiguration)
	}
	for i, t := range o.Temperatures {
		if t < 0 {
			return fmt.Errorf("%w: temperature %v must be >= 0", ErrConfiguration, t)
		}
		if i > 0 && t < o.Temperatures[i-1] {
			return fmt.Errorf("%w: temperatures must be ascending", ErrConfiguration)
		}
	}

	lang := o.pinnedLanguage()
	switch {
	case !o.Multilingual && lang != "":
		return fmt.Errorf("%w: a language cannot be set for non-multilingual models", ErrConfiguration)
	case o.Multilingual && lang == "" && !o.DetectLanguage:
		return fmt.Errorf("%w: multilingual models need a language or language detection", ErrConfiguration)
	case o.Multilingual && lang != "" && !SupportedLanguage(lang):
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return nil
}
