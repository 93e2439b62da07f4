package model

import (
	"context"
	"errors"
	"testing"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"":          KindFull,
		"full":      KindFull,
		"GGUF":      KindQuantized,
		"quantized": KindQuantized,
		" stub ":    KindStub,
	}
	for input, want := range cases {
		got, err := ParseKind(input)
		if err != nil {
			t.Fatalf("ParseKind(%q) error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q): want %v, got %v", input, want, got)
		}
	}
	if _, err := ParseKind("onnx"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestOpenWithoutLoaderIsUnavailable(t *testing.T) {
	_, err := Open(KindQuantized, "/models/tiny.gguf", Backends{})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestOpenDispatchesOnKind(t *testing.T) {
	var calls []string
	backends := Backends{
		Full: func(path string) (Model, error) {
			calls = append(calls, "full:"+path)
			return NewStub(DefaultStubScript()), nil
		},
		Quantized: func(path string) (Model, error) {
			calls = append(calls, "quantized:"+path)
			return nil, errors.New("corrupt file")
		},
	}

	if _, err := Open(KindFull, "a.safetensors", backends); err != nil {
		t.Fatalf("Open full error: %v", err)
	}
	if _, err := Open(KindQuantized, "b.gguf", backends); err == nil {
		t.Fatalf("expected quantized loader error to propagate")
	}
	if len(calls) != 2 || calls[0] != "full:a.safetensors" || calls[1] != "quantized:b.gguf" {
		t.Fatalf("unexpected loader calls: %v", calls)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	backends := Backends{Full: func(string) (Model, error) { return nil, nil }}
	if _, err := Open(KindFull, "  ", backends); err == nil {
		t.Fatalf("expected error for empty model path")
	}
}

func TestStubReplaysScript(t *testing.T) {
	script := DefaultStubScript()
	stub := NewStub(script)
	ctx := context.Background()

	features := tensor.New(2, 4)
	audio, err := stub.EncoderForward(ctx, features)
	if err != nil {
		t.Fatalf("EncoderForward error: %v", err)
	}

	tokens := []int{1, 6}
	hidden, err := stub.DecoderForward(ctx, tokens, audio, true)
	if err != nil {
		t.Fatalf("DecoderForward error: %v", err)
	}
	logits, err := stub.DecoderFinalLinear(ctx, hidden, hidden.Rows-1)
	if err != nil {
		t.Fatalf("DecoderFinalLinear error: %v", err)
	}
	if argmax(logits) != script.Words[0] {
		t.Fatalf("expected first scripted word %d, got %d", script.Words[0], argmax(logits))
	}
}

func TestStubSilenceFavoursNoSpeech(t *testing.T) {
	script := DefaultStubScript()
	stub := NewStub(script)
	ctx := context.Background()

	features := tensor.New(1, 3)
	for i := range features.Data {
		features.Data[i] = -1.5
	}
	audio, _ := stub.EncoderForward(ctx, features)
	hidden, _ := stub.DecoderForward(ctx, []int{1, 6}, audio, true)

	first, err := stub.DecoderFinalLinear(ctx, hidden, 0)
	if err != nil {
		t.Fatalf("DecoderFinalLinear error: %v", err)
	}
	if argmax(first) != script.NoSpeech {
		t.Fatalf("expected no-speech to dominate position 0, got %d", argmax(first))
	}
	last, _ := stub.DecoderFinalLinear(ctx, hidden, 1)
	if argmax(last) != script.EndOfText {
		t.Fatalf("expected end-of-text on silence, got %d", argmax(last))
	}
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
