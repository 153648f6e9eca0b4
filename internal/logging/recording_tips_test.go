package logging

import (
	"strings"
	"testing"

	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/timing"
)

func TestWrapText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWidth int
		indent   string
		want     string
	}{
		{
			name:     "short_text_no_wrap",
			text:     "Hello world",
			maxWidth: 20,
			indent:   "  ",
			want:     "Hello world",
		},
		{
			name:     "long_text_wraps",
			text:     "Try moving closer to your microphone for better results",
			maxWidth: 30,
			indent:   "  ",
			want:     "Try moving closer to your\n  microphone for better results",
		},
		{
			name:     "single_long_word",
			text:     "supercalifragilisticexpialidocious",
			maxWidth: 10,
			indent:   "  ",
			want:     "supercalifragilisticexpialidocious",
		},
		{
			name:     "empty_input",
			text:     "",
			maxWidth: 20,
			indent:   "  ",
			want:     "",
		},
		{
			name:     "exact_fit",
			text:     "exactly twenty chars",
			maxWidth: 20,
			indent:   "  ",
			want:     "exactly twenty chars",
		},
		{
			name:     "multiple_wraps",
			text:     "one two three four five six seven eight nine ten",
			maxWidth: 15,
			indent:   "    ",
			want:     "one two three\n    four five six\n    seven eight\n    nine ten",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.maxWidth, tt.indent)
			if got != tt.want {
				t.Errorf("wrapText() = %q, want %q", got, tt.want)
			}
		})
	}
}

// quietRoom is a clean, well-levelled take that should fire no tips.
func quietRoom() *processor.AudioMeasurements {
	return &processor.AudioMeasurements{
		InputI:                 -20,
		InputTP:                -3,
		InputLRA:               8,
		NoiseFloor:             -70,
		SpectralCentroid:       2000,
		SpectralRolloff:        6000,
		RMSLevel:               -24,
		NoiseReductionHeadroom: 40,
		MainsHum:               -30,
	}
}

func with(mutate func(m *processor.AudioMeasurements)) TipInput {
	m := quietRoom()
	mutate(m)
	return TipInput{Measurements: m}
}

func checkTip(t *testing.T, name string, tip *RecordingTip, wantRuleID string) {
	t.Helper()
	if wantRuleID == "" {
		if tip != nil {
			t.Errorf("%s fired %q, want no tip", name, tip.RuleID)
		}
		return
	}
	if tip == nil {
		t.Fatalf("%s returned nil, want %q", name, wantRuleID)
	}
	if tip.RuleID != wantRuleID {
		t.Errorf("%s RuleID = %q, want %q", name, tip.RuleID, wantRuleID)
	}
}

func TestTipLevelTooQuiet(t *testing.T) {
	tests := []struct {
		name       string
		inputI     float64
		wantRuleID string
		wantGain   string
	}{
		{"very quiet -35 LUFS", -35.0, "level_too_quiet", "17 dB"},
		{"boundary -30 LUFS", -30.0, "", ""},
		{"moderately quiet -28 LUFS", -28.0, "", ""},
		{"normal -20 LUFS", -20.0, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tip := tipLevelTooQuiet(with(func(m *processor.AudioMeasurements) { m.InputI = tt.inputI }))
			checkTip(t, "tipLevelTooQuiet", tip, tt.wantRuleID)
			if tip != nil && !strings.Contains(tip.Message, tt.wantGain) {
				t.Errorf("message %q does not mention %q", tip.Message, tt.wantGain)
			}
		})
	}
}

func TestTipLevelQuiet(t *testing.T) {
	tests := []struct {
		name       string
		inputI     float64
		wantRuleID string
	}{
		{"too quiet for this rule", -32.0, ""},
		{"lower boundary", -30.0, "level_quiet"},
		{"quiet", -27.0, "level_quiet"},
		{"upper boundary", -24.0, ""},
		{"normal", -18.0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tip := tipLevelQuiet(with(func(m *processor.AudioMeasurements) { m.InputI = tt.inputI }))
			checkTip(t, "tipLevelQuiet", tip, tt.wantRuleID)
		})
	}
}

func TestTipLevelTooHot(t *testing.T) {
	tests := []struct {
		name       string
		inputTP    float64
		clipping   int
		wantRuleID string
	}{
		{"clipping true peak", 0.5, 0, "level_clipping"},
		{"clipped after processing", -3.0, 4, "level_clipping"},
		{"near clipping", -0.5, 0, "level_near_clipping"},
		{"boundary -1 dBTP", -1.0, 0, ""},
		{"healthy headroom", -6.0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := with(func(m *processor.AudioMeasurements) { m.InputTP = tt.inputTP })
			in.ClippingEvents = tt.clipping
			checkTip(t, "tipLevelTooHot", tipLevelTooHot(in), tt.wantRuleID)
		})
	}
}

func TestTipBackgroundNoise(t *testing.T) {
	tests := []struct {
		name       string
		floor      float64
		wantRuleID string
	}{
		{"noisy", -40.0, "background_noise_high"},
		{"boundary -45", -45.0, "background_noise_moderate"},
		{"moderate", -50.0, "background_noise_moderate"},
		{"boundary -55", -55.0, ""},
		{"quiet", -70.0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tip := tipBackgroundNoise(with(func(m *processor.AudioMeasurements) { m.NoiseFloor = tt.floor }))
			checkTip(t, "tipBackgroundNoise", tip, tt.wantRuleID)
		})
	}
}

func TestTipMainsHum(t *testing.T) {
	tests := []struct {
		name       string
		hum        float64
		hz         int
		floor      float64
		wantRuleID string
		wantText   string
	}{
		{"strong 50 Hz hum", -2.0, 50, -50.0, "mains_hum", "50 Hz"},
		{"strong hum, frequency unknown", -2.0, 0, -50.0, "mains_hum", "mains hum"},
		{"hum too weak", -15.0, 60, -50.0, "", ""},
		{"hum inaudible", -1.0, 60, -70.0, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tip := tipMainsHum(with(func(m *processor.AudioMeasurements) {
				m.MainsHum = tt.hum
				m.MainsHz = tt.hz
				m.NoiseFloor = tt.floor
			}))
			checkTip(t, "tipMainsHum", tip, tt.wantRuleID)
			if tip != nil && !strings.Contains(tip.Message, tt.wantText) {
				t.Errorf("message %q does not mention %q", tip.Message, tt.wantText)
			}
		})
	}
}

func TestTipTooFarFromMic(t *testing.T) {
	tests := []struct {
		name       string
		headroom   float64
		rms        float64
		wantRuleID string
	}{
		{"distant and quiet", 12.0, -35.0, "too_far_from_mic"},
		{"good headroom", 20.0, -35.0, ""},
		{"loud enough", 12.0, -25.0, ""},
		{"unmeasured headroom", 0, -35.0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tip := tipTooFarFromMic(with(func(m *processor.AudioMeasurements) {
				m.NoiseReductionHeadroom = tt.headroom
				m.RMSLevel = tt.rms
			}))
			checkTip(t, "tipTooFarFromMic", tip, tt.wantRuleID)
		})
	}
}

func TestTipSibilance(t *testing.T) {
	tests := []struct {
		name       string
		intensity  float64
		centroid   float64
		rolloff    float64
		wantRuleID string
	}{
		{"hard working de-esser on a bright voice", 0.8, 4500, 11000, "sibilance"},
		{"gentle de-esser", 0.4, 4500, 11000, ""},
		{"de-esser off", 0, 4500, 11000, ""},
		{"warm centroid", 0.8, 3000, 11000, ""},
		{"low rolloff", 0.8, 4500, 9000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := with(func(m *processor.AudioMeasurements) {
				m.SpectralCentroid = tt.centroid
				m.SpectralRolloff = tt.rolloff
			})
			in.DeessIntensity = tt.intensity
			checkTip(t, "tipSibilance", tipSibilance(in), tt.wantRuleID)
		})
	}
}

func TestTipDynamicRange(t *testing.T) {
	checkTip(t, "tipDynamicRange", tipDynamicRange(with(func(m *processor.AudioMeasurements) { m.InputLRA = 22 })), "dynamic_range")
	checkTip(t, "tipDynamicRange", tipDynamicRange(with(func(m *processor.AudioMeasurements) { m.InputLRA = 18 })), "")
}

func TestTipPoorSNR(t *testing.T) {
	checkTip(t, "tipPoorSNR", tipPoorSNR(with(func(m *processor.AudioMeasurements) { m.NoiseReductionHeadroom = 6 })), "poor_snr")
	checkTip(t, "tipPoorSNR", tipPoorSNR(with(func(m *processor.AudioMeasurements) { m.NoiseReductionHeadroom = 10 })), "")
	checkTip(t, "tipPoorSNR", tipPoorSNR(with(func(m *processor.AudioMeasurements) { m.NoiseReductionHeadroom = 0 })), "")
}

func TestTipDeadAir(t *testing.T) {
	in := with(func(*processor.AudioMeasurements) {})
	in.DeadAirRatio = 0.55
	tip := tipDeadAir(in)
	checkTip(t, "tipDeadAir", tip, "dead_air")
	if !strings.Contains(tip.Message, "55%") {
		t.Errorf("message %q does not mention the ratio", tip.Message)
	}

	in.DeadAirRatio = 0.4
	checkTip(t, "tipDeadAir", tipDeadAir(in), "")
}

func TestTipInputFor(t *testing.T) {
	m := quietRoom()
	tr := pipeline.TakeResult{
		Measured: m,
		Analyses: []processor.Analysis{
			{Processor: processor.FilterHighpass},
			{Processor: processor.FilterDeesser, Metrics: map[string]float64{"intensity": 0.7}},
		},
		Timing:  timing.NewBuilder(1000).Keep(1000).Remove(3000, timing.SilenceTrimmed).Build(),
		Quality: pipeline.QualityReport{ClippingEvents: 2},
	}

	in := TipInputFor(tr)
	if in.Measurements != m {
		t.Error("measurements not carried over")
	}
	if in.DeessIntensity != 0.7 {
		t.Errorf("DeessIntensity = %v, want 0.7", in.DeessIntensity)
	}
	if in.DeadAirRatio != 0.75 {
		t.Errorf("DeadAirRatio = %v, want 0.75", in.DeadAirRatio)
	}
	if in.ClippingEvents != 2 {
		t.Errorf("ClippingEvents = %d, want 2", in.ClippingEvents)
	}

	if got := TipInputFor(pipeline.TakeResult{}); got.DeadAirRatio != 0 || got.Measurements != nil {
		t.Errorf("empty take gave %+v", got)
	}
}

func TestGenerateRecordingTips(t *testing.T) {
	t.Run("nil measurements", func(t *testing.T) {
		if tips := GenerateRecordingTips(TipInput{}); tips != nil {
			t.Errorf("got %v, want nil", tips)
		}
	})

	t.Run("clean take", func(t *testing.T) {
		if tips := GenerateRecordingTips(TipInput{Measurements: quietRoom()}); len(tips) != 0 {
			t.Errorf("got %v, want no tips", tips)
		}
	})

	t.Run("clipping suppresses quiet", func(t *testing.T) {
		in := with(func(m *processor.AudioMeasurements) {
			m.InputI = -35
			m.InputTP = 0.5
		})
		for _, tip := range GenerateRecordingTips(in) {
			if tip.RuleID == "level_too_quiet" {
				t.Error("level_too_quiet fired alongside clipping")
			}
		}
	})

	t.Run("far from mic suppresses poor snr", func(t *testing.T) {
		in := with(func(m *processor.AudioMeasurements) {
			m.NoiseReductionHeadroom = 8
			m.RMSLevel = -36
		})
		ids := ruleIDs(GenerateRecordingTips(in))
		if !ids["too_far_from_mic"] || ids["poor_snr"] {
			t.Errorf("got %v", ids)
		}
	})

	t.Run("hum replaces moderate noise", func(t *testing.T) {
		in := with(func(m *processor.AudioMeasurements) {
			m.NoiseFloor = -50
			m.MainsHum = -1
			m.MainsHz = 60
		})
		ids := ruleIDs(GenerateRecordingTips(in))
		if !ids["mains_hum"] || ids["background_noise_moderate"] {
			t.Errorf("got %v", ids)
		}
	})

	t.Run("sorted and capped", func(t *testing.T) {
		in := with(func(m *processor.AudioMeasurements) {
			m.InputI = -27
			m.InputTP = -0.5
			m.NoiseFloor = -40
			m.MainsHum = -1
			m.InputLRA = 20
			m.SpectralCentroid = 4500
			m.SpectralRolloff = 12000
		})
		in.DeessIntensity = 0.9
		in.DeadAirRatio = 0.6
		tips := GenerateRecordingTips(in)
		if len(tips) != MaxRecordingTips {
			t.Fatalf("got %d tips, want %d", len(tips), MaxRecordingTips)
		}
		for i := 1; i < len(tips); i++ {
			if tips[i].Priority > tips[i-1].Priority {
				t.Errorf("tip %d (%s) outranks tip %d (%s)", i, tips[i].RuleID, i-1, tips[i-1].RuleID)
			}
		}
		if tips[0].RuleID != "level_near_clipping" && tips[0].RuleID != "background_noise_high" {
			t.Errorf("first tip = %s", tips[0].RuleID)
		}
	})
}

func ruleIDs(tips []RecordingTip) map[string]bool {
	ids := make(map[string]bool, len(tips))
	for _, tip := range tips {
		ids[tip.RuleID] = true
	}
	return ids
}
