package avsync

import (
	"fmt"
	"math"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// ApplyVolumeAutomation makes buf exactly as long as the video in comp. The
// tail is cut or padded with silence, and the last Fade of programme audio
// is ramped down with a raised-cosine curve so the edit is inaudible.
// Strategies other than VolumeAutomation leave the audio untouched.
func ApplyVolumeAutomation(buf *audio.Buffer, comp *Compensation) (*audio.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if comp == nil || comp.Strategy != VolumeAutomation {
		return buf, nil
	}

	target := audio.DurationToFrames(comp.VideoDuration, buf.SampleRate)
	if target <= 0 {
		return nil, &SyncError{Strategy: VolumeAutomation, Drift: comp.Offset, Tolerance: comp.Tolerance,
			Err: fmt.Errorf("%w: video has no duration", ErrUncompensable)}
	}

	out, err := audio.NewBuffer(buf.Channels(), target, buf.SampleRate)
	if err != nil {
		return nil, err
	}
	kept := min(target, buf.Frames())
	for ch, s := range buf.Samples {
		copy(out.Samples[ch], s[:kept])
	}

	fade := min(audio.DurationToFrames(comp.Fade, buf.SampleRate), kept)
	if fade > 0 {
		start := kept - fade
		for i := range fade {
			g := 0.5 + 0.5*math.Cos(math.Pi*(float64(i)+0.5)/float64(fade))
			for ch := range out.Samples {
				out.Samples[ch][start+i] *= float32(g)
			}
		}
	}
	return out, nil
}
