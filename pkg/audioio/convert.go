package audioio

import "math"

// Resample converts audio from one sample rate to another using linear
// interpolation. Used to bring WAV fixtures to the pipeline rate.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	last := len(samples) - 1
	for i := range result {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx >= last {
			result[i] = samples[last]
			continue
		}
		frac := srcPos - float64(srcIdx)
		s1 := float64(samples[srcIdx])
		s2 := float64(samples[srcIdx+1])
		result[i] = ClampSample(s1 + frac*(s2-s1))
	}
	return result
}

// DownmixInts averages interleaved integer samples down to mono int16.
func DownmixInts(data []int, channels int) []int16 {
	if channels <= 1 {
		mono := make([]int16, len(data))
		for i, v := range data {
			mono[i] = ClampSample(float64(v))
		}
		return mono
	}

	mono := make([]int16, len(data)/channels)
	for i := range mono {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += data[i*channels+ch]
		}
		mono[i] = ClampSample(float64(sum) / float64(channels))
	}
	return mono
}

// ClampSample rounds toward zero and saturates to the int16 range.
func ClampSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
