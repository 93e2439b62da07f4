package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/audio"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/decoder"
	"github.com/nupi-ai/plugin-stt-native-whisper/internal/engine"
)

func TestResolveLanguage(t *testing.T) {
	cases := []struct {
		configured string
		meta       map[string]string
		want       string
	}{
		{"client", map[string]string{"nupi.lang.iso1": "pl"}, "pl"},
		{"client", map[string]string{"nupi.lang.iso1": "  pl  "}, "pl"},
		{"client", map[string]string{"nupi.lang.iso1": "   "}, "auto"},
		{"client", map[string]string{"nupi.lang.iso1": ""}, "auto"},
		{"client", map[string]string{}, "auto"},
		{"client", nil, "auto"},
		{"auto", map[string]string{"nupi.lang.iso1": "pl"}, "auto"},
		{"auto", nil, "auto"},
		{"de", map[string]string{"nupi.lang.iso1": "pl"}, "de"},
		{"en", nil, "en"},
	}
	for _, tc := range cases {
		if got := resolveLanguage(tc.configured, tc.meta); got != tc.want {
			t.Errorf("resolveLanguage(%q, %v): got %q, want %q", tc.configured, tc.meta, got, tc.want)
		}
	}
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{context.Canceled, codes.Canceled},
		{fmt.Errorf("scheduler: window 2: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{fmt.Errorf("%w: odd length", audio.ErrInputFormat), codes.InvalidArgument},
		{decoder.ErrConfiguration, codes.FailedPrecondition},
		{fmt.Errorf("%w: xx", decoder.ErrUnsupportedLanguage), codes.FailedPrecondition},
		{decoder.ErrModelInference, codes.Internal},
		{decoder.ErrNumericDegenerate, codes.Internal},
		{decoder.ErrInitialization, codes.Internal},
		{engine.ErrClosed, codes.Unavailable},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.ResourceExhausted, "busy"), codes.ResourceExhausted},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus(tc.err)); got != tc.want {
			t.Errorf("toStatus(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) should be nil")
	}
}
