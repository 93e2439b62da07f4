package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/mel"
)

func main() {
	var (
		nMel    = flag.Int("n-mel", 80, "number of mel bands (80 for most checkpoints, 128 for large-v3)")
		fftSize = flag.Int("fft", mel.FFTSize, "FFT size the filterbank is applied to")
		speedUp = flag.Bool("speed-up", false, "build the half-resolution bank used with speed-up")
		output  = flag.String("out", "testdata/mel_filters.bin", "output file")
	)
	flag.Parse()

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "gen_mel_filters: --out must not be empty")
		os.Exit(2)
	}
	if *nMel <= 0 || *fftSize <= 1 {
		fmt.Fprintln(os.Stderr, "gen_mel_filters: --n-mel and --fft must be positive")
		os.Exit(2)
	}

	size := *fftSize
	if *speedUp {
		size /= 2
	}
	fb := mel.NewSlaneyFilterbank(mel.SampleRate, size, *nMel)

	path := filepath.Clean(*output)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "gen_mel_filters: create dir: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gen_mel_filters: create %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := mel.WriteFilterbank(f, fb); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "gen_mel_filters: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "gen_mel_filters: close %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("Filterbank %dx%d written to %s\n", fb.NMel, fb.NBins, path)
}
