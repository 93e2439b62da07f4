// Package mel turns PCM samples into the normalised log-mel spectrogram
// consumed by the Whisper encoder.
package mel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
)

const (
	SampleRate  = 16000
	FFTSize     = 400
	HopLength   = 160
	ChunkLength = 30
	// ChunkFrames is the padding granularity: half a chunk worth of frames.
	ChunkFrames = 100 * ChunkLength / 2

	logFloor = 1e-10
)

// ErrInvalidOptions reports unusable framing parameters.
var ErrInvalidOptions = errors.New("mel: invalid options")

// Options configures framing of the spectrogram.
type Options struct {
	FFTSize     int
	HopLength   int
	ChunkFrames int
	// SpeedUp halves the frequency resolution by averaging adjacent bins.
	SpeedUp bool
	// Workers bounds the number of goroutines computing frames; <= 0 uses GOMAXPROCS.
	Workers int
}

// DefaultOptions returns the Whisper framing parameters.
func DefaultOptions() Options {
	return Options{
		FFTSize:     FFTSize,
		HopLength:   HopLength,
		ChunkFrames: ChunkFrames,
	}
}

func (o Options) validate() error {
	if o.FFTSize <= 0 {
		return fmt.Errorf("%w: fft size must be positive, got %d", ErrInvalidOptions, o.FFTSize)
	}
	if o.HopLength <= 0 {
		return fmt.Errorf("%w: hop length must be positive, got %d", ErrInvalidOptions, o.HopLength)
	}
	if o.ChunkFrames <= 0 {
		return fmt.Errorf("%w: chunk frames must be positive, got %d", ErrInvalidOptions, o.ChunkFrames)
	}
	return nil
}

func (o Options) workers(frames int) int {
	n := o.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > frames {
		n = frames
	}
	if n < 1 {
		n = 1
	}
	return n
}

// PaddedFrames returns the frame count for nSamples: rounded up to a multiple
// of chunk, plus one extra chunk.
func PaddedFrames(nSamples, hop, chunk int) int {
	frames := nSamples / hop
	if frames%chunk != 0 {
		frames = (frames/chunk + 1) * chunk
	}
	return frames + chunk
}

// LogMelSpectrogram computes the [NMel, frames] log10 mel spectrogram of
// samples. Frames are spread across a bounded worker pool; every worker owns
// its scratch buffers and writes a disjoint set of columns.
func LogMelSpectrogram(ctx context.Context, samples []float32, fb Filterbank, opts Options) (tensor.Matrix, error) {
	if err := opts.validate(); err != nil {
		return tensor.Matrix{}, err
	}
	bins := Bins(opts.FFTSize, opts.SpeedUp)
	if err := fb.Validate(bins); err != nil {
		return tensor.Matrix{}, err
	}

	frames := PaddedFrames(len(samples), opts.HopLength, opts.ChunkFrames)
	padded := make([]float64, frames*opts.HopLength)
	for i, s := range samples {
		padded[i] = float64(s)
	}

	window := HannWindow(opts.FFTSize)
	out := tensor.New(fb.NMel, frames)
	workers := opts.workers(frames)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		first := w
		g.Go(func() error {
			frame := make([]float64, opts.FFTSize)
			for i := first; i < frames; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				computeFrame(frame, padded, window, fb, out, i, opts)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tensor.Matrix{}, err
	}
	return out, nil
}

func computeFrame(frame, samples, window []float64, fb Filterbank, out tensor.Matrix, index int, opts Options) {
	offset := index * opts.HopLength
	for j := range frame {
		if offset+j < len(samples) {
			frame[j] = window[j] * samples[offset+j]
		} else {
			frame[j] = 0
		}
	}

	power := PowerSpectrum(FFT(frame), opts.FFTSize, opts.SpeedUp)
	for band := 0; band < fb.NMel; band++ {
		out.Set(band, index, float32(projectBand(power, fb.Band(band))))
	}
}

// projectBand returns log10 of the filtered band energy, floored at 1e-10.
func projectBand(power []float64, weights []float32) float64 {
	var sum float64
	for k, p := range power {
		sum += p * float64(weights[k])
	}
	return math.Log10(math.Max(sum, logFloor))
}

// PCMToMel computes the spectrogram and normalises it for the encoder.
func PCMToMel(ctx context.Context, samples []float32, fb Filterbank, opts Options) (tensor.Matrix, error) {
	spec, err := LogMelSpectrogram(ctx, samples, fb, opts)
	if err != nil {
		return tensor.Matrix{}, err
	}
	Normalize(spec)
	return spec, nil
}
