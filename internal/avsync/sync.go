// Package avsync keeps a processed audio track aligned with its paired video.
//
// The audio core never touches video. It compares the durations implied by
// the audio and video timing maps, picks a compensation strategy and returns
// a plan that the video layer carries out. Only volume automation is applied
// here, to the audio itself.
package avsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/linuxmatters/takemaster/internal/timing"
)

var (
	// ErrDriftExceeded is returned when a plan leaves a frame or more of drift.
	ErrDriftExceeded = errors.New("avsync: drift exceeds tolerance after compensation")
	// ErrUncompensable is returned when the selected strategy cannot close the gap.
	ErrUncompensable = errors.New("avsync: drift cannot be compensated")
	// ErrInvalidOptions is returned for bad options or missing maps.
	ErrInvalidOptions = errors.New("avsync: invalid options")
)

// Strategy is the compensation applied to close the drift.
type Strategy string

const (
	None             Strategy = "none"
	VolumeAutomation Strategy = "volume_automation"
	VisualTransition Strategy = "visual_transition"
	TrimVideo        Strategy = "trim_video"
)

// Drift bands
const (
	DefaultFrameRate = 30.0
	DefaultFade      = 500 * time.Millisecond

	// Below SmallDrift audio absorbs the difference on its own.
	SmallDrift = time.Second
	// Above LargeDrift the video is cut.
	LargeDrift = 5 * time.Second
)

// SyncError reports a plan that could not bring the tracks within tolerance.
type SyncError struct {
	Strategy  Strategy
	Drift     time.Duration
	Tolerance time.Duration
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: drift %v, tolerance %v: %v", e.Strategy, e.Drift, e.Tolerance, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Options tunes compensation.
type Options struct {
	// FrameRate of the video in frames per second. Zero means DefaultFrameRate.
	FrameRate float64
	// Fade is the length of the volume automation ramp. Zero means DefaultFade.
	Fade time.Duration
	// MaxVideoTrim limits how much video may be cut. Zero means unlimited.
	MaxVideoTrim time.Duration
	// Force skips band selection and uses this strategy, for callers falling
	// back after a SyncError.
	Force Strategy
}

func (o Options) withDefaults() (Options, error) {
	if o.FrameRate == 0 {
		o.FrameRate = DefaultFrameRate
	}
	if o.FrameRate < 0 || math.IsNaN(o.FrameRate) || math.IsInf(o.FrameRate, 0) {
		return o, fmt.Errorf("%w: frame rate %v", ErrInvalidOptions, o.FrameRate)
	}
	if o.Fade == 0 {
		o.Fade = DefaultFade
	}
	if o.Fade < 0 || o.MaxVideoTrim < 0 {
		return o, fmt.Errorf("%w: negative duration", ErrInvalidOptions)
	}
	switch o.Force {
	case "", None, VolumeAutomation, VisualTransition, TrimVideo:
	default:
		return o, fmt.Errorf("%w: unknown strategy %q", ErrInvalidOptions, o.Force)
	}
	return o, nil
}

// FramePeriod is the duration of one video frame.
func (o Options) FramePeriod() time.Duration {
	fps := o.FrameRate
	if fps == 0 {
		fps = DefaultFrameRate
	}
	return time.Duration(math.Round(float64(time.Second) / fps))
}

// Compensation is the plan handed to the video layer.
type Compensation struct {
	Strategy      Strategy
	AudioDuration time.Duration
	VideoDuration time.Duration
	// Offset is audio minus video before compensation.
	Offset    time.Duration
	Tolerance time.Duration
	// At is where the edit lands, on the processed audio timeline.
	At time.Duration
	// VideoAdjust and AudioAdjust are the planned length changes; negative
	// values shorten the track.
	VideoAdjust time.Duration
	AudioAdjust time.Duration
	Fade        time.Duration
	// Residual is the drift left after the plan is carried out.
	Residual time.Duration
}

type compensationJSON struct {
	Strategy      Strategy `json:"strategy"`
	AudioDuration float64  `json:"audio_duration"`
	VideoDuration float64  `json:"video_duration"`
	Offset        float64  `json:"offset"`
	Tolerance     float64  `json:"tolerance"`
	At            float64  `json:"at"`
	VideoAdjust   float64  `json:"video_adjust"`
	AudioAdjust   float64  `json:"audio_adjust"`
	Fade          float64  `json:"fade,omitempty"`
	Residual      float64  `json:"residual"`
}

// MarshalJSON writes every duration in seconds.
func (c *Compensation) MarshalJSON() ([]byte, error) {
	return json.Marshal(compensationJSON{
		Strategy:      c.Strategy,
		AudioDuration: c.AudioDuration.Seconds(),
		VideoDuration: c.VideoDuration.Seconds(),
		Offset:        c.Offset.Seconds(),
		Tolerance:     c.Tolerance.Seconds(),
		At:            c.At.Seconds(),
		VideoAdjust:   c.VideoAdjust.Seconds(),
		AudioAdjust:   c.AudioAdjust.Seconds(),
		Fade:          c.Fade.Seconds(),
		Residual:      c.Residual.Seconds(),
	})
}

// SelectStrategy picks the band for a drift of either sign.
func SelectStrategy(drift, framePeriod time.Duration) Strategy {
	d := drift.Abs()
	switch {
	case d < framePeriod:
		return None
	case d < SmallDrift:
		return VolumeAutomation
	case d <= LargeDrift:
		return VisualTransition
	default:
		return TrimVideo
	}
}

// Compensate plans how to bring the audio described by audioMap back in line
// with the video described by videoMap. The plan is checked before it is
// returned: a residual of a frame or more is a SyncError.
func Compensate(audioMap, videoMap *timing.Map, opts Options) (*Compensation, error) {
	if audioMap == nil || videoMap == nil {
		return nil, fmt.Errorf("%w: both timing maps are required", ErrInvalidOptions)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	c := &Compensation{
		AudioDuration: audioMap.ProcessedDuration(),
		VideoDuration: videoMap.ProcessedDuration(),
		Tolerance:     opts.FramePeriod(),
	}
	c.Offset = c.AudioDuration - c.VideoDuration
	c.Strategy = opts.Force
	if c.Strategy == "" {
		c.Strategy = SelectStrategy(c.Offset, c.Tolerance)
	}
	c.At = placement(audioMap)

	switch c.Strategy {
	case None:
	case VolumeAutomation:
		c.AudioAdjust = -c.Offset
		c.At = c.AudioDuration
		c.Fade = opts.Fade
	case VisualTransition:
		// the transition holds or overlaps video by the drift, in whole frames
		c.VideoAdjust = quantise(c.Offset, c.Tolerance)
	case TrimVideo:
		if c.Offset > 0 {
			return nil, &SyncError{Strategy: TrimVideo, Drift: c.Offset, Tolerance: c.Tolerance, Err: ErrUncompensable}
		}
		c.VideoAdjust = quantise(c.Offset, c.Tolerance)
		if opts.MaxVideoTrim > 0 && -c.VideoAdjust > opts.MaxVideoTrim {
			c.VideoAdjust = -opts.MaxVideoTrim
		}
	}

	c.Residual = (c.AudioDuration + c.AudioAdjust) - (c.VideoDuration + c.VideoAdjust)
	if c.Residual.Abs() >= c.Tolerance {
		return nil, &SyncError{Strategy: c.Strategy, Drift: c.Residual, Tolerance: c.Tolerance, Err: ErrDriftExceeded}
	}
	return c, nil
}

// placement returns the processed start of the largest removal in m, or its
// end when nothing was removed.
func placement(m *timing.Map) time.Duration {
	var best timing.Segment
	found := false
	for _, s := range m.Segments() {
		if removed := s.OriginalLength() - s.ProcessedLength(); removed > 0 &&
			(!found || removed > best.OriginalLength()-best.ProcessedLength()) {
			best, found = s, true
		}
	}
	if !found {
		return m.ProcessedDuration()
	}
	return best.ProcessedStart
}

// quantise rounds d to a whole number of frames.
func quantise(d, frame time.Duration) time.Duration {
	if frame <= 0 {
		return d
	}
	return time.Duration(math.Round(float64(d)/float64(frame))) * frame
}
