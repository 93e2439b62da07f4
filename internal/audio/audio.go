// Package audio turns WAV files and raw PCM payloads into mono float32
// samples in [-1, 1].
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInputFormat reports malformed audio or a sample-rate mismatch.
var ErrInputFormat = errors.New("audio: unsupported input format")

// DecodeWAV reads a PCM WAV container and returns channel 0 as float32.
// A sample rate other than wantRate is rejected; no resampling happens.
func DecodeWAV(r io.ReadSeeker, wantRate int) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a PCM WAV file", ErrInputFormat)
	}
	if int(dec.SampleRate) != wantRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrInputFormat, dec.SampleRate, wantRate)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read samples: %v", ErrInputFormat, err)
	}
	return monoFloat32(buf, int(dec.NumChans), int(dec.BitDepth))
}

func monoFloat32(buf *goaudio.IntBuffer, channels, bitDepth int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrInputFormat, channels)
	}
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: bit depth %d", ErrInputFormat, bitDepth)
	}

	scale := float32(int64(1) << (bitDepth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range samples {
		v := buf.Data[i*channels]
		if bitDepth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		samples[i] = float32(v) / scale
	}
	return samples, nil
}

// PCM16ToFloat32 converts little-endian signed 16-bit mono PCM.
func PCM16ToFloat32(payload []byte) ([]float32, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM16 payload length %d", ErrInputFormat, len(payload))
	}
	samples := make([]float32, len(payload)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(payload[2*i:]))) / 32768.0
	}
	return samples, nil
}
