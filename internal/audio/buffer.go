// Package audio provides the in-memory sample buffer and WAV file I/O
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxFrames caps a single buffer allocation (per channel). Roughly 93 minutes at 48kHz.
const MaxFrames = 1 << 28

var (
	// ErrNotFound is returned when an input file does not exist.
	ErrNotFound = errors.New("audio: file not found")
	// ErrUnsupportedFormat is returned for files that cannot be decoded.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
	// ErrInvalidFormat is returned for impossible sample rates or channel counts.
	ErrInvalidFormat = errors.New("audio: invalid format")
	// ErrTooLarge is returned when a requested buffer exceeds MaxFrames.
	ErrTooLarge = errors.New("audio: buffer too large")
	// ErrChannelLength is returned when channels disagree on frame count.
	ErrChannelLength = errors.New("audio: channel lengths differ")
)

// Buffer holds decoded audio as one float32 slice per channel.
// All channels have the same length and SampleRate never changes once set.
// A Buffer is owned by exactly one stage at a time.
type Buffer struct {
	Samples    [][]float32
	SampleRate int
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(channels, frames, sampleRate int) (*Buffer, error) {
	if channels <= 0 || sampleRate <= 0 || frames < 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidFormat, channels, sampleRate)
	}
	if frames > MaxFrames {
		return nil, fmt.Errorf("%w: %d frames requested (max %d)", ErrTooLarge, frames, MaxFrames)
	}
	samples := make([][]float32, channels)
	for ch := range samples {
		samples[ch] = make([]float32, frames)
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return len(b.Samples)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Duration returns the buffer length as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	return FramesToDuration(b.Frames(), b.SampleRate)
}

// Seconds returns the buffer length in seconds.
func (b *Buffer) Seconds() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// FrameAt converts a time offset to the nearest frame index, clamped to the buffer.
func (b *Buffer) FrameAt(d time.Duration) int {
	f := DurationToFrames(d, b.SampleRate)
	if f < 0 {
		return 0
	}
	if n := b.Frames(); f > n {
		return n
	}
	return f
}

// TimeAt is the offset of frame from the start of the buffer.
func (b *Buffer) TimeAt(frame int) time.Duration {
	return FramesToDuration(frame, b.SampleRate)
}

// Validate checks the buffer invariants.
func (b *Buffer) Validate() error {
	if b == nil || len(b.Samples) == 0 || b.SampleRate <= 0 {
		return ErrInvalidFormat
	}
	n := len(b.Samples[0])
	for ch := 1; ch < len(b.Samples); ch++ {
		if len(b.Samples[ch]) != n {
			return fmt.Errorf("%w: channel %d has %d frames, channel 0 has %d",
				ErrChannelLength, ch, len(b.Samples[ch]), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Samples: make([][]float32, len(b.Samples)), SampleRate: b.SampleRate}
	for ch, s := range b.Samples {
		out.Samples[ch] = append([]float32(nil), s...)
	}
	return out
}

// Slice copies frames [start, end) into a new buffer.
func (b *Buffer) Slice(start, end int) *Buffer {
	n := b.Frames()
	start = max(0, min(start, n))
	end = max(start, min(end, n))
	out := &Buffer{Samples: make([][]float32, len(b.Samples)), SampleRate: b.SampleRate}
	for ch, s := range b.Samples {
		out.Samples[ch] = append([]float32(nil), s[start:end]...)
	}
	return out
}

// Equal reports whether two buffers hold identical samples.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.SampleRate != o.SampleRate || len(b.Samples) != len(o.Samples) {
		return false
	}
	for ch := range b.Samples {
		if len(b.Samples[ch]) != len(o.Samples[ch]) {
			return false
		}
		for i, v := range b.Samples[ch] {
			if v != o.Samples[ch][i] {
				return false
			}
		}
	}
	return true
}

// HasNonFinite reports whether any sample is NaN or infinite.
func (b *Buffer) HasNonFinite() bool {
	for _, s := range b.Samples {
		for _, v := range s {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return true
			}
		}
	}
	return false
}

// Mono returns the channel average as a float64 slice, used by analysis code.
func (b *Buffer) Mono() []float64 {
	n := b.Frames()
	out := make([]float64, n)
	if len(b.Samples) == 0 {
		return out
	}
	scale := 1.0 / float64(len(b.Samples))
	for _, s := range b.Samples {
		for i, v := range s {
			out[i] += float64(v) * scale
		}
	}
	return out
}

// FramesToDuration converts a frame count at the given rate to a duration.
func FramesToDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(frames) * float64(time.Second) / float64(sampleRate)))
}

// DurationToFrames converts a duration to the nearest frame count.
func DurationToFrames(d time.Duration, sampleRate int) int {
	return int(math.Round(d.Seconds() * float64(sampleRate)))
}
