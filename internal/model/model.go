// Package model defines the sequence-model capability consumed by the
// decoder and dispatches between the available backends.
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
)

// ErrBackendUnavailable indicates that no loader is registered for the requested backend.
var ErrBackendUnavailable = errors.New("model: backend unavailable")

// Config carries the hyper-parameters the decoder needs from a checkpoint.
type Config struct {
	NumMelBins         int   `json:"num_mel_bins" yaml:"num_mel_bins"`
	MaxSourcePositions int   `json:"max_source_positions" yaml:"max_source_positions"`
	MaxTargetPositions int   `json:"max_target_positions" yaml:"max_target_positions"`
	VocabSize          int   `json:"vocab_size" yaml:"vocab_size"`
	SuppressTokens     []int `json:"suppress_tokens" yaml:"suppress_tokens"`
}

// Model exposes the forward passes of an encoder/decoder checkpoint. Calls
// block until the pass completes.
type Model interface {
	Config() Config
	// EncoderForward encodes a [n_mel, frames] feature window into audio states.
	EncoderForward(ctx context.Context, features tensor.Matrix) (tensor.Matrix, error)
	// DecoderForward runs the decoder over the full token prefix. resetCache
	// drops any key/value cache kept from the previous call.
	DecoderForward(ctx context.Context, tokens []int, audio tensor.Matrix, resetCache bool) (tensor.Matrix, error)
	// DecoderFinalLinear projects the hidden state at position onto the vocabulary.
	DecoderFinalLinear(ctx context.Context, hidden tensor.Matrix, position int) ([]float32, error)
}

// Kind selects the backend implementation at load time.
type Kind int

const (
	KindFull Kind = iota
	KindQuantized
	KindStub
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindQuantized:
		return "quantized"
	case KindStub:
		return "stub"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps configuration values onto a Kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "full", "safetensors":
		return KindFull, nil
	case "quantized", "gguf":
		return KindQuantized, nil
	case "stub":
		return KindStub, nil
	default:
		return 0, fmt.Errorf("model: unknown backend kind %q", value)
	}
}

// Loader opens a checkpoint stored at path.
type Loader func(path string) (Model, error)

// Backends lists the loaders compiled into the binary. A nil loader means the
// backend is not available.
type Backends struct {
	Full      Loader
	Quantized Loader
}

// Open dispatches on kind and loads the model from path.
func Open(kind Kind, path string, backends Backends) (Model, error) {
	var loader Loader
	switch kind {
	case KindFull:
		loader = backends.Full
	case KindQuantized:
		loader = backends.Quantized
	case KindStub:
		return NewStub(DefaultStubScript()), nil
	default:
		return nil, fmt.Errorf("model: unknown backend kind %v", kind)
	}
	if loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, kind)
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("model: %s backend requires a model path", kind)
	}
	m, err := loader(path)
	if err != nil {
		return nil, fmt.Errorf("model: load %s checkpoint %s: %w", kind, path, err)
	}
	return m, nil
}
