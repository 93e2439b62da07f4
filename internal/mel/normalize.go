package mel

import (
	"math"

	"github.com/nupi-ai/plugin-stt-native-whisper/internal/tensor"
)

// dynamicRange is the span, in log10 units, kept below the global maximum.
const dynamicRange = 8

// Normalize clips every value to max-8 and rescales it to v/4+1. The result
// lies in [max/4-1, max/4+1], which is [-1, 1] only when the peak is 0.
// Empty matrices are left untouched.
func Normalize(m tensor.Matrix) {
	if len(m.Data) == 0 {
		return
	}
	peak := float32(math.Inf(-1))
	for _, v := range m.Data {
		if v > peak {
			peak = v
		}
	}
	floor := peak - dynamicRange
	for i, v := range m.Data {
		if v < floor {
			v = floor
		}
		m.Data[i] = v/4 + 1
	}
}
