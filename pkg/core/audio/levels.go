package audio

import "math"

// RMS computes the root-mean-square level of normalized samples, 0..1.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude of normalized samples, 0..1.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		abs := math.Abs(float64(s))
		if abs > peak {
			peak = abs
		}
	}
	return peak
}

// PeakPCM16 returns the peak amplitude of 16-bit samples, 0..1.
func PeakPCM16(samples []int16) float64 {
	var peak float64
	for _, s := range samples {
		// float64 avoids overflow negating -32768
		abs := math.Abs(float64(s))
		if abs > peak {
			peak = abs
		}
	}
	return peak / 32768.0
}
