package engine

import (
	"context"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/scheduler"
)

// Engine turns a PCM buffer into an ordered list of transcript segments.
type Engine interface {
	// Transcribe runs the full pipeline over samples. emit, when non-nil,
	// receives every segment as soon as its window is decoded.
	Transcribe(ctx context.Context, samples []float32, opts Options, emit func(scheduler.Segment) error) (Transcript, error)
	// Close releases underlying resources.
	Close() error
}

// Options configures a single Transcribe call.
type Options struct {
	// Language pins the transcript language; empty or "auto" uses the engine default.
	Language string
}

// Transcript is the outcome of one Transcribe call.
type Transcript struct {
	Segments []scheduler.Segment `json:"segments"`
	Language string              `json:"language"`
	Stats    scheduler.Stats     `json:"-"`
}

// Text joins the segment texts.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		parts = append(parts, seg.Text)
	}
	return joinSegments(parts)
}
