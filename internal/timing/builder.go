package timing

import (
	"fmt"
	"math"
	"time"
)

// Builder accumulates a Map from frame counts so that segment boundaries land
// exactly on sample positions.
type Builder struct {
	sampleRate int
	orig, proc int
	segs       []Segment
}

// NewBuilder starts an empty map for audio at sampleRate.
func NewBuilder(sampleRate int) *Builder {
	return &Builder{sampleRate: sampleRate}
}

func (b *Builder) at(frames int) time.Duration {
	return time.Duration(math.Round(float64(frames) * float64(time.Second) / float64(b.sampleRate)))
}

// Keep passes frames through unchanged.
func (b *Builder) Keep(frames int) *Builder {
	return b.Span(frames, frames, Unchanged)
}

// Remove drops frames from the output.
func (b *Builder) Remove(frames int, reason Reason) *Builder {
	return b.Span(frames, 0, reason)
}

// Span maps origFrames of input onto procFrames of output.
func (b *Builder) Span(origFrames, procFrames int, reason Reason) *Builder {
	if origFrames <= 0 {
		return b
	}
	procFrames = max(0, procFrames)
	b.segs = append(b.segs, Segment{
		OriginalStart:  b.at(b.orig),
		OriginalEnd:    b.at(b.orig + origFrames),
		ProcessedStart: b.at(b.proc),
		ProcessedEnd:   b.at(b.proc + procFrames),
		Reason:         reason,
	})
	b.orig += origFrames
	b.proc += procFrames
	return b
}

// OriginalFrames is the input length consumed so far.
func (b *Builder) OriginalFrames() int { return b.orig }

// ProcessedFrames is the output length produced so far.
func (b *Builder) ProcessedFrames() int { return b.proc }

// Build returns the accumulated map.
func (b *Builder) Build() *Map {
	m := &Map{segments: append([]Segment(nil), b.segs...)}
	m.merge()
	return m
}

// FrameSpan is a half-open range of sample frames.
type FrameSpan struct {
	Start, End int
}

// FromKeeps maps totalFrames of audio onto the concatenation of keeps. The
// gaps between keeps are removed with reason. keeps must be sorted, inside
// [0, totalFrames) and must not overlap.
func FromKeeps(sampleRate, totalFrames int, keeps []FrameSpan, reason Reason) (*Map, error) {
	if sampleRate <= 0 || totalFrames < 0 {
		return nil, fmt.Errorf("%w: rate %d, %d frames", ErrInvalidMap, sampleRate, totalFrames)
	}
	b := NewBuilder(sampleRate)
	cursor := 0
	for _, k := range keeps {
		if k.Start < cursor || k.End < k.Start || k.End > totalFrames {
			return nil, fmt.Errorf("%w: keep [%d, %d) after frame %d of %d", ErrInvalidMap, k.Start, k.End, cursor, totalFrames)
		}
		b.Remove(k.Start-cursor, reason)
		b.Keep(k.End - k.Start)
		cursor = k.End
	}
	b.Remove(totalFrames-cursor, reason)
	return b.Build(), nil
}
