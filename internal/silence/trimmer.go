package silence

import (
	"fmt"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/timing"
)

// Trimmer defaults.
const (
	DefaultStartBuffer = 150 * time.Millisecond
	DefaultEndBuffer   = 300 * time.Millisecond
	DefaultMaxPause    = 800 * time.Millisecond
	DefaultEdgeFade    = 3 * time.Millisecond
)

// TrimOptions controls the dead-air trimmer.
type TrimOptions struct {
	SustainedVoice time.Duration // voice regions shorter than this do not anchor the trim
	StartBuffer    time.Duration // kept before the first sustained voice
	EndBuffer      time.Duration // kept after the last sustained voice
	CompressPauses bool          // shorten mid-take dead air to MaxPause
	MaxPause       time.Duration
	EdgeFade       time.Duration // ramp applied at every cut edge
}

// DefaultTrimOptions returns the documented defaults.
func DefaultTrimOptions() TrimOptions {
	return TrimOptions{
		SustainedVoice: DefaultSustainedVoice,
		StartBuffer:    DefaultStartBuffer,
		EndBuffer:      DefaultEndBuffer,
		CompressPauses: true,
		MaxPause:       DefaultMaxPause,
		EdgeFade:       DefaultEdgeFade,
	}
}

// TrimRegion is a span of samples removed from the take.
type TrimRegion struct {
	StartFrame int           `json:"start_frame"`
	EndFrame   int           `json:"end_frame"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Reason     string        `json:"reason"`
}

// Frames is the trimmed length in samples.
func (t TrimRegion) Frames() int { return t.EndFrame - t.StartFrame }

// KeepRegion is a span of samples retained in the output.
type KeepRegion struct {
	StartFrame int `json:"start_frame"`
	EndFrame   int `json:"end_frame"`
}

// Frames is the kept length in samples.
func (k KeepRegion) Frames() int { return k.EndFrame - k.StartFrame }

// TrimPlan is the complete edit decision for one take.
type TrimPlan struct {
	SampleRate  int
	TotalFrames int
	Trims       []TrimRegion
	Keeps       []KeepRegion
	// Regions is the classification the plan was made against, with voice
	// blips outside the sustained span relabelled as pauses.
	Regions []Region
	Timing  *timing.Map
	// EdgeFade is the ramp Apply puts on every cut edge.
	EdgeFade time.Duration
	// Relabelled counts voice regions demoted because they were too short to
	// be speech and lay outside the sustained voice span.
	Relabelled int
}

// TrimmedFrames is the total number of samples removed.
func (p *TrimPlan) TrimmedFrames() int {
	n := 0
	for _, t := range p.Trims {
		n += t.Frames()
	}
	return n
}

// KeptFrames is the output length in samples.
func (p *TrimPlan) KeptFrames() int {
	return p.TotalFrames - p.TrimmedFrames()
}

// Trimmer removes leading and trailing dead air and optionally shortens long
// mid-take pauses.
type Trimmer struct {
	opts TrimOptions
}

// NewTrimmer returns a Trimmer using opts.
func NewTrimmer(opts TrimOptions) (*Trimmer, error) {
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"SustainedVoice", opts.SustainedVoice},
		{"StartBuffer", opts.StartBuffer},
		{"EndBuffer", opts.EndBuffer},
		{"EdgeFade", opts.EdgeFade},
	} {
		if d.v < 0 {
			return nil, invalid(d.name, "cannot be negative")
		}
	}
	if opts.CompressPauses && opts.MaxPause <= 0 {
		return nil, invalid("MaxPause", "must be positive when compressing pauses")
	}
	return &Trimmer{opts: opts}, nil
}

// Plan decides what to cut. A take without any sustained voice is kept whole.
func (t *Trimmer) Plan(a *Analysis) (*TrimPlan, error) {
	plan := &TrimPlan{
		SampleRate:  a.SampleRate,
		TotalFrames: a.TotalFrames,
		Regions:     append([]Region(nil), a.Regions...),
		EdgeFade:    t.opts.EdgeFade,
	}
	toFrames := func(d time.Duration) int { return audio.DurationToFrames(d, a.SampleRate) }

	first, last := -1, -1
	for i, r := range plan.Regions {
		if r.Kind == Voice && r.Duration() > t.opts.SustainedVoice {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first >= 0 {
		for i := range plan.Regions {
			if (i < first || i > last) && plan.Regions[i].Kind == Voice {
				plan.Regions[i].Kind = ShortPause
				plan.Relabelled++
			}
		}

		if lead := plan.Regions[first].StartFrame - toFrames(t.opts.StartBuffer); lead > 0 {
			plan.addTrim(0, lead, "leading dead air")
		}

		if t.opts.CompressPauses && last > first {
			capFrames := toFrames(t.opts.MaxPause)
			for _, r := range plan.Regions[first+1 : last] {
				if r.Kind != DeadAir || r.Frames() <= capFrames {
					continue
				}
				head := capFrames / 2
				tail := capFrames - head
				plan.addTrim(r.StartFrame+head, r.EndFrame-tail,
					fmt.Sprintf("dead air compressed from %s to %s", r.Duration().Round(time.Millisecond), t.opts.MaxPause))
			}
		}

		if tail := plan.Regions[last].EndFrame + toFrames(t.opts.EndBuffer); tail < a.TotalFrames {
			plan.addTrim(tail, a.TotalFrames, "trailing dead air")
		}
	}

	plan.Keeps = complement(plan.Trims, a.TotalFrames)
	tm, err := plan.buildTiming()
	if err != nil {
		return nil, fmt.Errorf("silence: %w", err)
	}
	plan.Timing = tm

	for _, tr := range plan.Trims {
		for _, r := range plan.Regions {
			if r.Kind == Voice && r.Overlaps(tr.StartFrame, tr.EndFrame) {
				return nil, fmt.Errorf("silence: trim %v-%v overlaps voice at %v", tr.Start, tr.End, r.Start)
			}
		}
	}
	return plan, nil
}

func (p *TrimPlan) addTrim(start, end int, reason string) {
	if end <= start {
		return
	}
	p.Trims = append(p.Trims, TrimRegion{
		StartFrame: start,
		EndFrame:   end,
		Start:      audio.FramesToDuration(start, p.SampleRate),
		End:        audio.FramesToDuration(end, p.SampleRate),
		Reason:     reason,
	})
}

func complement(trims []TrimRegion, total int) []KeepRegion {
	var keeps []KeepRegion
	cursor := 0
	for _, t := range trims {
		if t.StartFrame > cursor {
			keeps = append(keeps, KeepRegion{StartFrame: cursor, EndFrame: t.StartFrame})
		}
		cursor = t.EndFrame
	}
	if cursor < total {
		keeps = append(keeps, KeepRegion{StartFrame: cursor, EndFrame: total})
	}
	return keeps
}

func (p *TrimPlan) buildTiming() (*timing.Map, error) {
	spans := make([]timing.FrameSpan, len(p.Keeps))
	for i, k := range p.Keeps {
		spans[i] = timing.FrameSpan{Start: k.StartFrame, End: k.EndFrame}
	}
	return timing.FromKeeps(p.SampleRate, p.TotalFrames, spans, timing.SilenceTrimmed)
}

// Apply builds the trimmed buffer from the keep regions. Each cut edge gets a
// short linear ramp; the output length is exactly KeptFrames.
func (p *TrimPlan) Apply(buf *audio.Buffer) (*audio.Buffer, error) {
	if buf.Frames() != p.TotalFrames || buf.SampleRate != p.SampleRate {
		return nil, fmt.Errorf("silence: plan made for %d frames at %d Hz, buffer has %d at %d Hz",
			p.TotalFrames, p.SampleRate, buf.Frames(), buf.SampleRate)
	}
	out, err := audio.NewBuffer(buf.Channels(), p.KeptFrames(), buf.SampleRate)
	if err != nil {
		return nil, err
	}
	fadeFrames := audio.DurationToFrames(p.EdgeFade, buf.SampleRate)

	pos := 0
	for _, k := range p.Keeps {
		n := k.Frames()
		ramp := min(fadeFrames, n/2)
		for ch := range buf.Samples {
			dst := out.Samples[ch][pos : pos+n]
			copy(dst, buf.Samples[ch][k.StartFrame:k.EndFrame])
			if k.StartFrame > 0 {
				rampIn(dst[:ramp])
			}
			if k.EndFrame < p.TotalFrames {
				rampOut(dst[n-ramp:])
			}
		}
		pos += n
	}
	return out, nil
}

func rampIn(s []float32) {
	for i := range s {
		s[i] *= float32(i) / float32(len(s))
	}
}

func rampOut(s []float32) {
	for i := range s {
		s[i] *= float32(len(s)-i) / float32(len(s))
	}
}
