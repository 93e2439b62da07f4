package mel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrFilterbankShape indicates a filterbank that does not match the spectrum it is applied to.
var ErrFilterbankShape = errors.New("mel: filterbank shape mismatch")

// Filterbank is a read-only [NMel, NBins] row-major projection matrix.
type Filterbank struct {
	NMel  int
	NBins int
	Data  []float32
}

// Validate checks the filterbank against the number of power bins it will be applied to.
func (f Filterbank) Validate(bins int) error {
	if f.NMel <= 0 || f.NBins <= 0 {
		return fmt.Errorf("%w: empty filterbank", ErrFilterbankShape)
	}
	if len(f.Data) != f.NMel*f.NBins {
		return fmt.Errorf("%w: %d values for %dx%d", ErrFilterbankShape, len(f.Data), f.NMel, f.NBins)
	}
	if f.NBins != bins {
		return fmt.Errorf("%w: filterbank has %d bins, spectrum has %d", ErrFilterbankShape, f.NBins, bins)
	}
	return nil
}

// Band returns the weights of a single mel band.
func (f Filterbank) Band(band int) []float32 {
	return f.Data[band*f.NBins : (band+1)*f.NBins]
}

// LoadFilterbank reads nMel rows of little-endian float32 weights. The bin
// count is inferred from the payload size.
func LoadFilterbank(r io.Reader, nMel int) (Filterbank, error) {
	if nMel <= 0 {
		return Filterbank{}, fmt.Errorf("%w: n_mel must be positive, got %d", ErrFilterbankShape, nMel)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return Filterbank{}, fmt.Errorf("mel: read filterbank: %w", err)
	}
	if len(raw)%4 != 0 {
		return Filterbank{}, fmt.Errorf("%w: %d bytes is not a float32 payload", ErrFilterbankShape, len(raw))
	}
	count := len(raw) / 4
	if count == 0 || count%nMel != 0 {
		return Filterbank{}, fmt.Errorf("%w: %d values do not split into %d bands", ErrFilterbankShape, count, nMel)
	}
	data := make([]float32, count)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return Filterbank{NMel: nMel, NBins: count / nMel, Data: data}, nil
}

// WriteFilterbank serialises the filterbank in the layout read by LoadFilterbank.
func WriteFilterbank(w io.Writer, f Filterbank) error {
	buf := make([]byte, 4*len(f.Data))
	for i, v := range f.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("mel: write filterbank: %w", err)
	}
	return nil
}

// NewSlaneyFilterbank builds triangular filters on the Slaney mel scale with
// area normalisation, the layout Whisper checkpoints were trained against.
func NewSlaneyFilterbank(sampleRate, fftSize, nMel int) Filterbank {
	bins := Bins(fftSize, false)
	nyquist := float64(sampleRate) / 2

	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = nyquist * float64(k) / float64(bins-1)
	}

	minMel, maxMel := hzToMel(0), hzToMel(nyquist)
	melFreqs := make([]float64, nMel+2)
	for i := range melFreqs {
		melFreqs[i] = melToHz(minMel + (maxMel-minMel)*float64(i)/float64(nMel+1))
	}

	data := make([]float32, nMel*bins)
	for band := 0; band < nMel; band++ {
		lowDiff := melFreqs[band+1] - melFreqs[band]
		highDiff := melFreqs[band+2] - melFreqs[band+1]
		enorm := 2 / (melFreqs[band+2] - melFreqs[band])
		for k, freq := range fftFreqs {
			lower := (freq - melFreqs[band]) / lowDiff
			upper := (melFreqs[band+2] - freq) / highDiff
			weight := math.Max(0, math.Min(lower, upper))
			data[band*bins+k] = float32(weight * enorm)
		}
	}
	return Filterbank{NMel: nMel, NBins: bins, Data: data}
}

const (
	slaneyStep   = 200.0 / 3
	slaneyLogHz  = 1000.0
	slaneyLogMel = slaneyLogHz / slaneyStep
)

var slaneyLogStep = math.Log(6.4) / 27

func hzToMel(hz float64) float64 {
	if hz < slaneyLogHz {
		return hz / slaneyStep
	}
	return slaneyLogMel + math.Log(hz/slaneyLogHz)/slaneyLogStep
}

func melToHz(m float64) float64 {
	if m < slaneyLogMel {
		return m * slaneyStep
	}
	return slaneyLogHz * math.Exp(slaneyLogStep*(m-slaneyLogMel))
}
