package mel

import "math"

// HannWindow returns the periodic Hann coefficients for an FFT of the given size.
func HannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}
	return window
}

// FFT computes the discrete Fourier transform of a real signal using a
// recursive radix-2 split. Whenever a sub-problem has odd length it is
// handed to DFT, so sizes such as 400 (400 → 200 → 100 → 50 → 25) are
// supported. The result holds len(in) complex values as interleaved
// real/imaginary pairs.
func FFT(in []float64) []float64 {
	n := len(in)
	switch {
	case n == 0:
		return nil
	case n == 1:
		return []float64{in[0], 0}
	case n%2 == 1:
		return DFT(in)
	}

	half := n / 2
	even := make([]float64, half)
	odd := make([]float64, half)
	for i := 0; i < half; i++ {
		even[i] = in[2*i]
		odd[i] = in[2*i+1]
	}
	evenFFT := FFT(even)
	oddFFT := FFT(odd)

	out := make([]float64, 2*n)
	for k := 0; k < half; k++ {
		theta := 2 * math.Pi * float64(k) / float64(n)
		re := math.Cos(theta)
		im := -math.Sin(theta)

		reOdd := oddFFT[2*k]
		imOdd := oddFFT[2*k+1]
		twRe := re*reOdd - im*imOdd
		twIm := re*imOdd + im*reOdd

		out[2*k] = evenFFT[2*k] + twRe
		out[2*k+1] = evenFFT[2*k+1] + twIm
		out[2*(k+half)] = evenFFT[2*k] - twRe
		out[2*(k+half)+1] = evenFFT[2*k+1] - twIm
	}
	return out
}

// DFT is the direct O(n²) transform with the same output layout as FFT.
func DFT(in []float64) []float64 {
	n := len(in)
	out := make([]float64, 0, 2*n)
	for k := 0; k < n; k++ {
		var re, im float64
		for j, x := range in {
			angle := 2 * math.Pi * float64(k) * float64(j) / float64(n)
			re += x * math.Cos(angle)
			im -= x * math.Sin(angle)
		}
		out = append(out, re, im)
	}
	return out
}

// Bins returns the number of power-spectrum bins kept for an FFT size.
func Bins(fftSize int, speedUp bool) int {
	if speedUp {
		return 1 + fftSize/4
	}
	return 1 + fftSize/2
}

// PowerSpectrum squares the FFT output in place and folds the mirrored upper
// half onto the lower half. The returned slice aliases spectrum and holds
// Bins(size, speedUp) values.
func PowerSpectrum(spectrum []float64, size int, speedUp bool) []float64 {
	for j := 0; j < size; j++ {
		re, im := spectrum[2*j], spectrum[2*j+1]
		spectrum[j] = re*re + im*im
	}
	for j := 1; j < size/2; j++ {
		spectrum[j] += spectrum[size-j]
	}

	bins := Bins(size, speedUp)
	if speedUp {
		for j := 0; j < bins; j++ {
			spectrum[j] = 0.5 * (spectrum[2*j] + spectrum[2*j+1])
		}
	}
	return spectrum[:bins]
}
