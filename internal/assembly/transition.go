// Package assembly joins processed takes into one programme and masters the result.
package assembly

import (
	"fmt"
	"math"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// Kind selects how two neighbouring takes are joined.
type Kind string

const (
	HardCut   Kind = "hard_cut"
	Crossfade Kind = "crossfade"
	Smart     Kind = "smart"
)

// Shape is the gain curve of a blend.
type Shape string

const (
	Linear     Shape = "linear"
	EqualPower Shape = "equal_power"
	SCurve     Shape = "s_curve"
)

// Transition defaults
const (
	DefaultDuration = 50 * time.Millisecond
	DefaultWindow   = 500 * time.Millisecond

	// MaxDuration caps a configured blend. Smart transitions may reach
	// smartLongFactor times the configured duration.
	MaxDuration = 2 * time.Second
)

// Smart transition tuning
const (
	// speechLevelDB: a boundary window louder than this is treated as speech.
	speechLevelDB = -35.0

	// similarRoom is the band-energy cosine similarity above which two
	// room tones are considered the same space.
	similarRoom = 0.9

	smartShortFactor = 0.2
	smartLongFactor  = 4.0

	// similarityBands log-spaced bands between 60 Hz and Nyquist.
	similarityBands  = 16
	similarityLowHz  = 60.0
	similarityFFTMax = 4096
)

// Config describes the transition placed at every take boundary.
type Config struct {
	Kind     Kind
	Duration time.Duration // crossfade length; the medium length for smart
	Shape    Shape         // crossfade only
	Window   time.Duration // smart analysis window on each side
}

// DefaultConfig is a short equal-power crossfade.
func DefaultConfig() Config {
	return Config{Kind: Crossfade, Duration: DefaultDuration, Shape: EqualPower, Window: DefaultWindow}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Kind {
	case HardCut, Crossfade, Smart:
	default:
		return fmt.Errorf("%w: unknown transition %q", ErrInvalidConfig, c.Kind)
	}
	if c.Kind == HardCut {
		return nil
	}
	if c.Duration <= 0 || c.Duration > MaxDuration {
		return fmt.Errorf("%w: duration %v outside (0, %v]", ErrInvalidConfig, c.Duration, MaxDuration)
	}
	switch c.Shape {
	case Linear, EqualPower, SCurve:
	default:
		if c.Kind == Crossfade {
			return fmt.Errorf("%w: unknown shape %q", ErrInvalidConfig, c.Shape)
		}
	}
	if c.Kind == Smart && c.Window <= 0 {
		return fmt.Errorf("%w: smart transition needs a positive window", ErrInvalidConfig)
	}
	return nil
}

// Transition records what was placed at one boundary.
type Transition struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Kind    Kind          `json:"kind"`
	Shape   Shape         `json:"shape,omitempty"`
	At      time.Duration `json:"at"`      // start of the blend in the output
	Overlap time.Duration `json:"overlap"` // time removed from the timeline
	Reason  string        `json:"reason,omitempty"`

	// Boundary analysis, smart transitions only.
	TailDB     float64 `json:"tail_db,omitempty"`
	HeadDB     float64 `json:"head_db,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`

	frames int
}

// gains returns the outgoing and incoming gain at position x in [0, 1].
func (s Shape) gains(x float64) (out, in float64) {
	switch s {
	case EqualPower:
		return math.Cos(x * math.Pi / 2), math.Sin(x * math.Pi / 2)
	case SCurve:
		in = 0.5 - 0.5*math.Cos(math.Pi*x)
		return 1 - in, in
	default:
		return 1 - x, x
	}
}

// plan decides the blend for the boundary between a and b.
func (c Config) plan(a, b *audio.Buffer) Transition {
	t := Transition{Kind: c.Kind}
	limit := min(a.Frames(), b.Frames()) / 2

	switch c.Kind {
	case HardCut:
		return t
	case Crossfade:
		t.Shape = c.Shape
		t.frames = audio.DurationToFrames(c.Duration, a.SampleRate)
	case Smart:
		w := min(audio.DurationToFrames(c.Window, a.SampleRate), limit)
		if w <= 0 {
			t.Reason = "take too short to analyse"
			return t
		}
		tail := a.Slice(a.Frames()-w, a.Frames())
		head := b.Slice(0, w)
		t.TailDB = audio.LinearToDB(tail.RMS())
		t.HeadDB = audio.LinearToDB(head.RMS())
		t.Similarity = roomSimilarity(tail, head)

		d := c.Duration
		switch {
		case t.TailDB > speechLevelDB || t.HeadDB > speechLevelDB:
			t.Shape, t.Reason = Linear, "speech at boundary"
			d = time.Duration(float64(d) * smartShortFactor)
		case t.Similarity >= similarRoom:
			t.Shape, t.Reason = EqualPower, "matching room tone"
			d = time.Duration(float64(d) * smartLongFactor)
		default:
			t.Shape, t.Reason = SCurve, "room tone differs"
		}
		t.frames = audio.DurationToFrames(d, a.SampleRate)
	}

	t.frames = max(0, min(t.frames, limit))
	return t
}

// blend mixes the first n frames of b into dst ending at frame end.
func blend(dst [][]float32, end int, b *audio.Buffer, n int, shape Shape) {
	start := end - n
	for ch, src := range b.Samples {
		d := dst[ch]
		for k := range n {
			g0, g1 := shape.gains((float64(k) + 0.5) / float64(n))
			d[start+k] = float32(float64(d[start+k])*g0 + float64(src[k])*g1)
		}
	}
}
