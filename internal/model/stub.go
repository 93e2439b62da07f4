package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tokenizer"
)

const (
	stubFavoured      = 10
	stubLanguageBias  = 8
	stubNoSpeechBias  = 12
	stubMaxTarget     = 448
	stubMaxSource     = 1500
	stubDefaultMelDim = 80
)

// StubScript describes the token stream the stub model produces.
type StubScript struct {
	EndOfText int
	NoSpeech  int
	Language  int
	// TextBase is the first id counted as generated text.
	TextBase  int
	Words     []int
	VocabSize int
	// SilenceLevel is the mean feature value below which a window is reported as silence.
	SilenceLevel float32
}

// DefaultStubScript pairs the stub model with tokenizer.StubVocabulary.
func DefaultStubScript() StubScript {
	vocab := tokenizer.StubVocabulary()
	lookup := func(piece string) int {
		id, _ := vocab.TokenToID(piece)
		return id
	}
	words := make([]int, len(tokenizer.StubWords))
	for i, w := range tokenizer.StubWords {
		words[i] = lookup(w)
	}
	return StubScript{
		EndOfText:    lookup("<|endoftext|>"),
		NoSpeech:     lookup("<|nospeech|>"),
		Language:     lookup("<|en|>"),
		TextBase:     tokenizer.StubTextBase,
		Words:        words,
		VocabSize:    vocab.Size(),
		SilenceLevel: -1.2,
	}
}

// Stub is a deterministic Model that replays a fixed sentence for every
// window with enough energy, and favours end-of-text on silent windows.
type Stub struct {
	cfg    Config
	script StubScript
}

// NewStub returns a stub model driven by script.
func NewStub(script StubScript) *Stub {
	return &Stub{
		cfg: Config{
			NumMelBins:         stubDefaultMelDim,
			MaxSourcePositions: stubMaxSource,
			MaxTargetPositions: stubMaxTarget,
			VocabSize:          script.VocabSize,
		},
		script: script,
	}
}

// Config implements Model.
func (s *Stub) Config() Config {
	return s.cfg
}

// EncoderForward reduces the window to its mean feature value.
func (s *Stub) EncoderForward(ctx context.Context, features tensor.Matrix) (tensor.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return tensor.Matrix{}, err
	}
	if features.Empty() {
		return tensor.Matrix{}, errors.New("model: stub encoder received an empty window")
	}
	var sum float64
	for _, v := range features.Data {
		sum += float64(v)
	}
	out := tensor.New(1, 1)
	out.Data[0] = float32(sum / float64(len(features.Data)))
	return out, nil
}

// DecoderForward records the prefix and the audio energy in the hidden state.
func (s *Stub) DecoderForward(ctx context.Context, tokens []int, audio tensor.Matrix, _ bool) (tensor.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return tensor.Matrix{}, err
	}
	if len(tokens) == 0 || audio.Empty() {
		return tensor.Matrix{}, errors.New("model: stub decoder requires tokens and audio states")
	}
	hidden := tensor.New(len(tokens), 2)
	for i, tok := range tokens {
		hidden.Set(i, 0, float32(tok))
		hidden.Set(i, 1, audio.Data[0])
	}
	return hidden, nil
}

// DecoderFinalLinear implements Model.
func (s *Stub) DecoderFinalLinear(ctx context.Context, hidden tensor.Matrix, position int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if position < 0 || position >= hidden.Rows {
		return nil, fmt.Errorf("model: position %d out of %d", position, hidden.Rows)
	}
	logits := make([]float32, s.script.VocabSize)
	silent := hidden.At(position, 1) < s.script.SilenceLevel

	if position == 0 {
		logits[s.script.Language] = stubLanguageBias
		if silent {
			logits[s.script.NoSpeech] = stubNoSpeechBias
		}
		return logits, nil
	}

	generated := 0
	for row := 0; row <= position; row++ {
		if int(hidden.At(row, 0)) >= s.script.TextBase {
			generated++
		}
	}
	next := s.script.EndOfText
	if !silent && generated < len(s.script.Words) {
		next = s.script.Words[generated]
	}
	logits[next] = stubFavoured
	return logits, nil
}
