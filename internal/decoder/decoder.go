// Package decoder runs the autoregressive Whisper decoding loop over a
// feature window, including language detection and temperature fallback.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/model"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tokenizer"
)

const (
	sotToken          = "<|startoftranscript|>"
	transcribeToken   = "<|transcribe|>"
	translateToken    = "<|translate|>"
	eotToken          = "<|endoftext|>"
	noTimestampsToken = "<|notimestamps|>"
)

// noSpeechTokens are tried in order; checkpoints name the tag differently.
var noSpeechTokens = []string{"<|nospeech|>", "<|nocaptions|>"}

// Result is the outcome of decoding one window at one temperature.
type Result struct {
	Tokens           []int   `json:"tokens"`
	Text             string  `json:"text"`
	AvgLogprob       float64 `json:"avg_logprob"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	Temperature      float64 `json:"temperature"`
	CompressionRatio float64 `json:"compression_ratio"`
	// Attempts counts the temperatures tried before this result was accepted.
	Attempts int `json:"-"`
}

// Decoder owns a model, its tokenizer and the random generator used for
// sampling. A Decoder is not safe for concurrent use.
type Decoder struct {
	model model.Model
	tok   tokenizer.Tokenizer
	opts  Options
	log   *slog.Logger
	rng   *rand.Rand

	suppress []float64

	sot          int
	transcribe   int
	translate    int
	eot          int
	noSpeech     int
	noTimestamps int

	// language is the pinned language tag id, or -1 when detection runs per window.
	language     int
	languageTags []int
}

// New resolves the special tokens and validates the language configuration.
// Any failure aborts construction.
func New(m model.Model, tok tokenizer.Tokenizer, opts Options, logger *slog.Logger) (*Decoder, error) {
	if m == nil || tok == nil {
		return nil, fmt.Errorf("%w: model and tokenizer are required", ErrInitialization)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cfg := m.Config()
	if cfg.VocabSize <= 0 {
		return nil, fmt.Errorf("%w: model config lacks a vocabulary size", ErrInitialization)
	}
	if cfg.MaxTargetPositions < 2 {
		return nil, fmt.Errorf("%w: max target positions %d leaves no decoding steps", ErrInitialization, cfg.MaxTargetPositions)
	}

	d := &Decoder{
		model:    m,
		tok:      tok,
		opts:     opts,
		log:      logger.With("component", "decoder.Decoder", "task", opts.Task.String()),
		rng:      rand.New(rand.NewPCG(opts.Seed, 0)),
		language: -1,
	}

	required := []struct {
		piece  string
		target *int
	}{
		{sotToken, &d.sot},
		{transcribeToken, &d.transcribe},
		{translateToken, &d.translate},
		{eotToken, &d.eot},
		{noTimestampsToken, &d.noTimestamps},
	}
	for _, r := range required {
		id, ok := tok.TokenToID(r.piece)
		if !ok {
			return nil, fmt.Errorf("%w: no token id for %s", ErrInitialization, r.piece)
		}
		if err := checkVocabRange(r.piece, id, cfg.VocabSize); err != nil {
			return nil, err
		}
		*r.target = id
	}

	d.noSpeech = -1
	for _, piece := range noSpeechTokens {
		if id, ok := tok.TokenToID(piece); ok {
			d.noSpeech = id
			break
		}
	}
	if d.noSpeech < 0 {
		return nil, fmt.Errorf("%w: unable to find any non-speech token", ErrInitialization)
	}
	if err := checkVocabRange("no-speech token", d.noSpeech, cfg.VocabSize); err != nil {
		return nil, err
	}

	if lang := opts.pinnedLanguage(); opts.Multilingual && lang != "" {
		id, ok := tok.TokenToID(languageTag(lang))
		if !ok {
			return nil, fmt.Errorf("%w: %q has no vocabulary tag", ErrUnsupportedLanguage, lang)
		}
		if err := checkVocabRange(languageTag(lang), id, cfg.VocabSize); err != nil {
			return nil, err
		}
		d.language = id
	}
	if opts.Multilingual && d.language < 0 {
		for _, code := range languages {
			id, ok := tok.TokenToID(languageTag(code))
			if !ok {
				continue
			}
			if err := checkVocabRange(languageTag(code), id, cfg.VocabSize); err != nil {
				return nil, err
			}
			d.languageTags = append(d.languageTags, id)
		}
		if len(d.languageTags) == 0 {
			return nil, fmt.Errorf("%w: vocabulary has no language tags for detection", ErrInitialization)
		}
	}

	d.suppress = make([]float64, cfg.VocabSize)
	for _, id := range cfg.SuppressTokens {
		if id >= 0 && id < cfg.VocabSize {
			d.suppress[id] = math.Inf(-1)
		}
	}
	return d, nil
}

// DetectLanguage picks the most probable language tag for the window.
func (d *Decoder) DetectLanguage(ctx context.Context, features tensor.Matrix) (int, error) {
	if len(d.languageTags) == 0 {
		return 0, fmt.Errorf("%w: language detection is not configured", ErrConfiguration)
	}
	cfg := d.model.Config()
	window := features
	if cfg.MaxSourcePositions > 0 && features.Cols > cfg.MaxSourcePositions {
		narrowed, err := features.Narrow(0, cfg.MaxSourcePositions)
		if err != nil {
			return 0, err
		}
		window = narrowed
	}

	audio, err := d.model.EncoderForward(ctx, window)
	if err != nil {
		return 0, inferenceError("encoder", err)
	}
	hidden, err := d.model.DecoderForward(ctx, []int{d.sot}, audio, true)
	if err != nil {
		return 0, inferenceError("decoder", err)
	}
	logits, err := d.logitsAt(ctx, hidden, 0)
	if err != nil {
		return 0, err
	}

	subset := make([]float64, len(d.languageTags))
	for i, id := range d.languageTags {
		subset[i] = logits[id]
	}
	probs := softmax(subset)
	best := d.languageTags[floats.MaxIdx(probs)]
	d.log.Debug("language detected", "token", best, "probability", floats.Max(probs))
	return best, nil
}

// Decode runs one decoding pass at temperature t.
func (d *Decoder) Decode(ctx context.Context, features tensor.Matrix, t float64) (Result, error) {
	lang, err := d.languageToken(ctx, features)
	if err != nil {
		return Result{}, err
	}
	return d.decode(ctx, features, t, lang)
}

// DecodeWithFallback tries every configured temperature in order and returns
// the first acceptable result; the last temperature's result is returned as is.
// Each attempt resolves the language again, so a failed detection is retried
// like any other inference error.
func (d *Decoder) DecodeWithFallback(ctx context.Context, features tensor.Matrix) (Result, error) {
	temps := d.opts.Temperatures
	for i, t := range temps {
		res, err := d.Decode(ctx, features, t)
		res.Attempts = i + 1
		if i == len(temps)-1 {
			return res, err
		}
		if err != nil {
			if !errors.Is(err, ErrModelInference) {
				return Result{}, err
			}
			d.log.Warn("decode failed, retrying at next temperature", "temperature", t, "error", err)
			continue
		}
		if d.acceptable(res) {
			return res, nil
		}
		d.log.Debug("decode rejected, falling back",
			"temperature", t,
			"avg_logprob", res.AvgLogprob,
			"compression_ratio", res.CompressionRatio,
			"no_speech_prob", res.NoSpeechProb,
		)
	}
	return Result{}, fmt.Errorf("%w: no temperatures configured", ErrConfiguration)
}

// acceptable reports whether a result passes the fallback thresholds.
func (d *Decoder) acceptable(res Result) bool {
	good := res.CompressionRatio <= d.opts.CompressionRatioThreshold && res.AvgLogprob >= d.opts.LogprobThreshold
	return good || res.NoSpeechProb > d.opts.NoSpeechThreshold
}

func (d *Decoder) languageToken(ctx context.Context, features tensor.Matrix) (int, error) {
	if !d.opts.Multilingual {
		return -1, nil
	}
	if d.language >= 0 {
		return d.language, nil
	}
	return d.DetectLanguage(ctx, features)
}

func (d *Decoder) prompt(language int) []int {
	tokens := []int{d.sot}
	if language >= 0 {
		tokens = append(tokens, language)
	}
	if d.opts.Task == TaskTranslate {
		tokens = append(tokens, d.translate)
	} else {
		tokens = append(tokens, d.transcribe)
	}
	if !d.opts.Timestamps {
		tokens = append(tokens, d.noTimestamps)
	}
	return tokens
}

func (d *Decoder) decode(ctx context.Context, features tensor.Matrix, t float64, language int) (Result, error) {
	cfg := d.model.Config()
	audio, err := d.model.EncoderForward(ctx, features)
	if err != nil {
		return Result{}, inferenceError("encoder", err)
	}

	tokens := d.prompt(language)
	noSpeechProb := math.NaN()
	var sumLogprob float64

	steps := cfg.MaxTargetPositions / 2
	for i := 0; i < steps; i++ {
		hidden, err := d.model.DecoderForward(ctx, tokens, audio, i == 0)
		if err != nil {
			return Result{}, inferenceError("decoder", err)
		}

		if i == 0 {
			first, err := d.logitsAt(ctx, hidden, 0)
			if err != nil {
				return Result{}, err
			}
			noSpeechProb = softmax(first)[d.noSpeech]
		}

		logits, err := d.logitsAt(ctx, hidden, hidden.Rows-1)
		if err != nil {
			return Result{}, err
		}
		floats.Add(logits, d.suppress)

		next, err := d.selectToken(logits, t)
		if err != nil {
			return Result{}, err
		}
		tokens = append(tokens, next)
		// Stop on reaching the limit rather than past it: the sequence must
		// never be longer than MaxTargetPositions.
		if next == d.eot || len(tokens) >= cfg.MaxTargetPositions {
			break
		}
		sumLogprob += logSoftmaxAt(logits, next)
	}

	text, err := d.tok.Decode(tokens, true)
	if err != nil {
		return Result{}, fmt.Errorf("decoder: detokenize: %w", err)
	}
	return Result{
		Tokens:           tokens,
		Text:             text,
		AvgLogprob:       sumLogprob / float64(len(tokens)),
		NoSpeechProb:     noSpeechProb,
		Temperature:      t,
		CompressionRatio: CompressionRatio(text),
	}, nil
}

func (d *Decoder) selectToken(logits []float64, t float64) (int, error) {
	if t > 0 {
		scaled := make([]float64, len(logits))
		for i, v := range logits {
			scaled[i] = v / t
		}
		return SampleWeighted(d.rng, softmax(scaled))
	}
	return floats.MaxIdx(logits), nil
}

func (d *Decoder) logitsAt(ctx context.Context, hidden tensor.Matrix, position int) ([]float64, error) {
	if hidden.Rows == 0 {
		return nil, fmt.Errorf("%w: decoder returned no positions", ErrModelInference)
	}
	raw, err := d.model.DecoderFinalLinear(ctx, hidden, position)
	if err != nil {
		return nil, inferenceError("final linear", err)
	}
	if want := d.model.Config().VocabSize; len(raw) != want {
		return nil, fmt.Errorf("%w: %d logits, vocabulary has %d", ErrModelInference, len(raw), want)
	}
	return toFloat64(raw), nil
}

func checkVocabRange(piece string, id, vocabSize int) error {
	if id < 0 || id >= vocabSize {
		return fmt.Errorf("%w: %s has id %d outside the model vocabulary of %d", ErrInitialization, piece, id, vocabSize)
	}
	return nil
}

func inferenceError(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrModelInference, stage, err)
}
