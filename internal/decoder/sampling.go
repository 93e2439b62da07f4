package decoder

import (
	"bytes"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/klauspost/compress/zlib"
	"gonum.org/v1/gonum/floats"
)

// SampleWeighted draws an index with probability proportional to its weight.
// Non-finite and non-positive weights never win. The generator is owned by
// the caller so draws are reproducible for a given seed.
func SampleWeighted(rng *rand.Rand, weights []float64) (int, error) {
	var total float64
	last := -1
	for i, w := range weights {
		if usableWeight(w) {
			total += w
			last = i
		}
	}
	if last < 0 || total <= 0 || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: no positive finite weight among %d entries", ErrNumericDegenerate, len(weights))
	}

	target := rng.Float64() * total
	var cumulative float64
	for i, w := range weights {
		if !usableWeight(w) {
			continue
		}
		cumulative += w
		if target < cumulative {
			return i, nil
		}
	}
	return last, nil
}

func usableWeight(w float64) bool {
	return w > 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

// softmax returns exp(x - logsumexp(x)). A vector with no finite entry yields all zeros.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	lse := floats.LogSumExp(logits)
	if math.IsInf(lse, 0) || math.IsNaN(lse) {
		return out
	}
	for i, v := range logits {
		out[i] = math.Exp(v - lse)
	}
	return out
}

// logSoftmaxAt returns log(softmax(logits)[index]).
func logSoftmaxAt(logits []float64, index int) float64 {
	return logits[index] - floats.LogSumExp(logits)
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// CompressionRatio is len(text)/len(zlib(text)); highly repetitive decodes
// compress well and score high. Empty text scores 0.
func CompressionRatio(text string) float64 {
	if text == "" {
		return 0
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(text)); err != nil {
		return 0
	}
	if err := w.Close(); err != nil {
		return 0
	}
	return float64(len(text)) / float64(buf.Len())
}
