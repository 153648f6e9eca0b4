package logging

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/processor"
)

// RecordingTip represents a single piece of actionable recording advice
// derived from audio analysis measurements.
type RecordingTip struct {
	Priority int    // Higher = more important (1-10)
	Message  string // Human-readable advice (1-2 sentences)
	RuleID   string // Identifier for testing/logging (e.g., "level_too_quiet")
}

// MaxRecordingTips is the maximum number of tips to return.
const MaxRecordingTips = 5

// TipInput is what the rules look at for one take.
type TipInput struct {
	Measurements *processor.AudioMeasurements
	// DeessIntensity is the de-esser's chosen intensity, 0 when it did not run.
	DeessIntensity float64
	// DeadAirRatio is the fraction of the take removed as dead air.
	DeadAirRatio   float64
	ClippingEvents int
}

// TipInputFor collects the rule inputs from a processed take.
func TipInputFor(tr pipeline.TakeResult) TipInput {
	in := TipInput{
		Measurements:   tr.Measured,
		ClippingEvents: tr.Quality.ClippingEvents,
	}
	for _, a := range tr.Analyses {
		if a.Processor == processor.FilterDeesser {
			in.DeessIntensity = a.Metrics["intensity"]
		}
	}
	if tr.Timing != nil && tr.Timing.OriginalDuration() > 0 {
		in.DeadAirRatio = float64(tr.Timing.RemovedDuration()) / float64(tr.Timing.OriginalDuration())
	}
	return in
}

type tipRule func(TipInput) *RecordingTip

// GenerateRecordingTips analyses a take and returns prioritised recording
// improvement suggestions.
func GenerateRecordingTips(in TipInput) []RecordingTip {
	if in.Measurements == nil {
		return nil
	}

	var tips []RecordingTip
	firedRules := make(map[string]bool)

	rules := []tipRule{
		tipLevelTooHot,
		tipLevelTooQuiet,
		tipLevelQuiet,
		tipBackgroundNoise,
		tipMainsHum,
		tipTooFarFromMic,
		tipSibilance,
		tipDynamicRange,
		tipPoorSNR,
		tipDeadAir,
	}

	for _, rule := range rules {
		if tip := rule(in); tip != nil {
			tips = append(tips, *tip)
			firedRules[tip.RuleID] = true
		}
	}

	tips = applyExclusions(tips, firedRules)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})

	if len(tips) > MaxRecordingTips {
		tips = tips[:MaxRecordingTips]
	}

	return tips
}

// applyExclusions removes tips that are redundant when a more specific tip
// has already fired. For example, "level_quiet" is suppressed when
// "too_far_from_mic" fires because the latter already implies the former.
func applyExclusions(tips []RecordingTip, fired map[string]bool) []RecordingTip {
	var result []RecordingTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "level_too_quiet", "level_quiet":
			if fired["level_clipping"] || fired["level_near_clipping"] || fired["too_far_from_mic"] {
				continue
			}
		case "poor_snr":
			if fired["too_far_from_mic"] {
				continue
			}
		case "background_noise_moderate":
			if fired["mains_hum"] {
				continue
			}
		}
		result = append(result, tip)
	}
	return result
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	words := strings.Fields(text)
	var lines []string
	currentLine := ""

	for _, word := range words {
		if currentLine == "" {
			currentLine = word
		} else if len(currentLine)+1+len(word) <= maxWidth {
			currentLine += " " + word
		} else {
			lines = append(lines, currentLine)
			currentLine = word
		}
	}
	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return strings.Join(lines, "\n"+indent)
}

// tipLevelTooQuiet fires below -30 LUFS integrated. Gain target is -18 LUFS.
func tipLevelTooQuiet(in TipInput) *RecordingTip {
	m := in.Measurements
	if m.InputI >= -30.0 {
		return nil
	}
	return &RecordingTip{
		Priority: 10,
		RuleID:   "level_too_quiet",
		Message:  fmt.Sprintf("Your microphone gain is too low - try increasing it by about %.0f dB.", -18.0-m.InputI),
	}
}

// tipLevelQuiet fires between -30 and -24 LUFS integrated.
func tipLevelQuiet(in TipInput) *RecordingTip {
	m := in.Measurements
	if m.InputI < -30.0 || m.InputI >= -24.0 {
		return nil
	}
	return &RecordingTip{
		Priority: 8,
		RuleID:   "level_quiet",
		Message:  fmt.Sprintf("Your recording is a bit quiet - increasing your microphone gain by about %.0f dB would improve quality.", -18.0-m.InputI),
	}
}

// tipLevelTooHot fires when true peak approaches or exceeds 0 dBTP, or when
// the processed take still clipped.
func tipLevelTooHot(in TipInput) *RecordingTip {
	m := in.Measurements
	if m.InputTP > 0.0 || in.ClippingEvents > 0 {
		return &RecordingTip{
			Priority: 10,
			RuleID:   "level_clipping",
			Message:  "Your recording is clipping - turn your microphone gain down by 6-10 dB to prevent distortion.",
		}
	}
	if m.InputTP <= -1.0 {
		return nil
	}
	return &RecordingTip{
		Priority: 9,
		RuleID:   "level_near_clipping",
		Message:  "Your recording is very close to clipping - turn your microphone gain down by 3-6 dB to give yourself some headroom.",
	}
}

// tipBackgroundNoise fires when the noise floor is above -55 dBFS.
func tipBackgroundNoise(in TipInput) *RecordingTip {
	noiseFloor := in.Measurements.NoiseFloor
	if noiseFloor > -45.0 {
		return &RecordingTip{
			Priority: 9,
			RuleID:   "background_noise_high",
			Message:  fmt.Sprintf("Background noise is high (%.0f dBFS) - try turning off fans, air conditioning, or other appliances before recording.", noiseFloor),
		}
	}
	if noiseFloor > -55.0 {
		return &RecordingTip{
			Priority: 6,
			RuleID:   "background_noise_moderate",
			Message:  fmt.Sprintf("Background noise is slightly elevated (%.0f dBFS) - if possible, turn off any fans or appliances nearby.", noiseFloor),
		}
	}
	return nil
}

// tipMainsHum fires when the pauses are dominated by mains harmonics and the
// noise is audible (> -65 dBFS).
func tipMainsHum(in TipInput) *RecordingTip {
	m := in.Measurements
	if m.MainsHum <= -10.0 || m.NoiseFloor < -65.0 {
		return nil
	}
	source := "mains"
	if m.MainsHz > 0 {
		source = fmt.Sprintf("%d Hz mains", m.MainsHz)
	}
	return &RecordingTip{
		Priority: 7,
		RuleID:   "mains_hum",
		Message:  fmt.Sprintf("There's a constant %s hum in your recording - check for nearby power supplies, monitors, or chargers and move them further from your microphone.", source),
	}
}

// tipTooFarFromMic fires when the voice sits close to the noise and is quiet
// overall: headroom < 15 dB and RMS < -30 dBFS.
func tipTooFarFromMic(in TipInput) *RecordingTip {
	m := in.Measurements
	if m.NoiseReductionHeadroom == 0 || m.NoiseReductionHeadroom >= 15.0 || m.RMSLevel >= -30.0 {
		return nil
	}
	return &RecordingTip{
		Priority: 8,
		RuleID:   "too_far_from_mic",
		Message:  "You sound quite far from your microphone. Try moving closer - about a hand's width (15-20cm) from the mic is ideal for most setups.",
	}
}

// tipSibilance fires when the de-esser worked hard (intensity > 0.5) on a
// bright voice: centroid > 4 kHz and rolloff > 10 kHz.
func tipSibilance(in TipInput) *RecordingTip {
	m := in.Measurements
	if in.DeessIntensity <= 0.5 {
		return nil
	}
	if m.SpectralCentroid <= 4000.0 || m.SpectralRolloff <= 10000.0 {
		return nil
	}
	return &RecordingTip{
		Priority: 4,
		RuleID:   "sibilance",
		Message:  "Your recording has noticeable sibilance (harsh 's' and 'sh' sounds). Try angling your microphone slightly off-axis - point it at your chin rather than directly at your mouth.",
	}
}

// tipDynamicRange fires when the loudness range is very wide (InputLRA > 18 LU),
// indicating inconsistent speaking volume or microphone distance.
func tipDynamicRange(in TipInput) *RecordingTip {
	if in.Measurements.InputLRA <= 18.0 {
		return nil
	}
	return &RecordingTip{
		Priority: 5,
		RuleID:   "dynamic_range",
		Message:  "Your speaking volume varies quite a lot. Try to maintain a consistent distance from your microphone and a steady speaking level.",
	}
}

// tipPoorSNR fires when the noise-to-speech gap is under 10 dB.
// NoiseReductionHeadroom == 0 is treated as unmeasured and skipped.
func tipPoorSNR(in TipInput) *RecordingTip {
	h := in.Measurements.NoiseReductionHeadroom
	if h >= 10.0 || h == 0 {
		return nil
	}
	return &RecordingTip{
		Priority: 7,
		RuleID:   "poor_snr",
		Message:  "The gap between your voice and the background noise is very small. Move closer to your microphone and reduce background noise if possible.",
	}
}

// tipDeadAir fires when more than 40% of the take was removed as dead air.
func tipDeadAir(in TipInput) *RecordingTip {
	if in.DeadAirRatio <= 0.4 {
		return nil
	}
	return &RecordingTip{
		Priority: 3,
		RuleID:   "dead_air",
		Message:  fmt.Sprintf("%.0f%% of this take was dead air. Start speaking sooner after pressing record and stop the take when you finish.", in.DeadAirRatio*100),
	}
}
