package audio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, rate, channels int, data []int) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "input.wav"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	return f
}

func TestDecodeWAVMono(t *testing.T) {
	f := writeWAV(t, 16000, 1, []int{0, 16384, -32768, 32767})
	samples, err := DecodeWAV(f, 16000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	if len(samples) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodeWAVKeepsFirstChannel(t *testing.T) {
	f := writeWAV(t, 16000, 2, []int{16384, -16384, -16384, 16384})
	samples, err := DecodeWAV(f, 16000)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -0.5 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestDecodeWAVRejectsRateMismatch(t *testing.T) {
	f := writeWAV(t, 44100, 1, []int{1, 2, 3})
	if _, err := DecodeWAV(f, 16000); !errors.Is(err, ErrInputFormat) {
		t.Fatalf("expected ErrInputFormat, got %v", err)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	r := bytes.NewReader([]byte("definitely not a riff container"))
	if _, err := DecodeWAV(r, 16000); !errors.Is(err, ErrInputFormat) {
		t.Fatalf("expected ErrInputFormat, got %v", err)
	}
}

func TestPCM16ToFloat32(t *testing.T) {
	samples, err := PCM16ToFloat32([]byte{0x00, 0x40, 0x00, 0x80, 0x00, 0x00})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := []float32{0.5, -1, 0}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}

	if _, err := PCM16ToFloat32([]byte{1, 2, 3}); !errors.Is(err, ErrInputFormat) {
		t.Fatalf("expected ErrInputFormat, got %v", err)
	}
	if out, err := PCM16ToFloat32(nil); err != nil || len(out) != 0 {
		t.Fatalf("empty payload: %v %v", out, err)
	}
}
