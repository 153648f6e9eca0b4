package audio

import "math"

// SilenceDB is reported for digital silence instead of -Inf.
const SilenceDB = -120.0

// ClipThreshold is the absolute sample value counted as clipping.
const ClipThreshold = 0.999

// DBToLinear converts decibels to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude to decibels, flooring at SilenceDB.
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return SilenceDB
	}
	return max(20*math.Log10(linear), SilenceDB)
}

// RMS returns the root-mean-square level across all channels.
func (b *Buffer) RMS() float64 {
	var sum float64
	var n int
	for _, s := range b.Samples {
		for _, v := range s {
			sum += float64(v) * float64(v)
		}
		n += len(s)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		for _, v := range s {
			peak = max(peak, math.Abs(float64(v)))
		}
	}
	return peak
}

// ClippingEvents counts runs of consecutive samples at or above ClipThreshold.
// A run on any channel counts once.
func (b *Buffer) ClippingEvents() int {
	events := 0
	for _, s := range b.Samples {
		inRun := false
		for _, v := range s {
			clipped := math.Abs(float64(v)) >= ClipThreshold
			if clipped && !inRun {
				events++
			}
			inRun = clipped
		}
	}
	return events
}
