package logging

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/silence"
)

// maxDeadAirListed caps the dead-air regions printed per take.
const maxDeadAirListed = 5

// DisplayAnalysisResults prints the input analysis of one take to the
// console. Used by --analyse for rapid inspection without processing.
func DisplayAnalysisResults(w io.Writer, inputPath string, metadata *audio.Metadata, pc *processor.Context) {
	m := pc.Measurements

	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "ANALYSIS: %s\n", filepath.Base(inputPath))
	fmt.Fprintln(w, strings.Repeat("=", 70))

	fmt.Fprintf(w, "Duration:    %s\n", formatDurationHMS(metadata.Duration))
	fmt.Fprintf(w, "Sample Rate: %d Hz\n", metadata.SampleRate)
	fmt.Fprintf(w, "Channels:    %s\n", channelName(metadata.Channels))
	if metadata.BitDepth > 0 {
		fmt.Fprintf(w, "Bit Depth:   %d\n", metadata.BitDepth)
	}
	fmt.Fprintln(w)

	writeAnalysisSection(w, "LOUDNESS")
	fmt.Fprintf(w, "  Integrated:     %s LUFS\n", formatMetricLUFS(m.InputI, 1))
	fmt.Fprintf(w, "  True Peak:      %s dBTP\n", formatMetricDB(m.InputTP, 1))
	fmt.Fprintf(w, "  Loudness Range: %.1f LU\n", m.InputLRA)
	fmt.Fprintln(w)

	writeAnalysisSection(w, "DYNAMICS")
	fmt.Fprintf(w, "  RMS Level:      %s dBFS\n", formatMetricDB(m.RMSLevel, 1))
	fmt.Fprintf(w, "  Peak Level:     %s dBFS\n", formatMetricDB(m.PeakLevel, 1))
	fmt.Fprintf(w, "  Dynamic Range:  %.1f dB\n", m.DynamicRange)
	fmt.Fprintf(w, "  Crest Factor:   %.1f dB\n", m.PeakLevel-m.RMSLevel)
	fmt.Fprintln(w)

	if va := pc.Voice; va != nil {
		writeAnalysisSection(w, "VOICE ACTIVITY")
		fmt.Fprintf(w, "  Noise Floor:    %s dBFS (%s)\n", formatMetricDB(va.NoiseFloorDB, 1), interpretNoiseFloor(va.NoiseFloorDB))
		fmt.Fprintf(w, "  Threshold:      %s dBFS\n", formatMetricDB(va.ThresholdDB, 1))
		fmt.Fprintf(w, "  Voice:          %.0f%%\n", va.VoiceRatio()*100)
		fmt.Fprintf(w, "  Dead Air:       %s\n", formatTimestamp(va.DeadAirDuration()))
		for i, r := range longestDeadAir(va, maxDeadAirListed) {
			fmt.Fprintf(w, "  #%d: %.1fs at %s (%s dBFS)\n", i+1, r.Duration().Seconds(), formatTimestamp(r.Start), formatMetricDB(r.LevelDB, 1))
		}
		fmt.Fprintln(w)
	}

	writeAnalysisSection(w, "NOISE")
	fmt.Fprintf(w, "  Noise Floor:    %s dBFS\n", formatMetricDB(m.NoiseFloor, 1))
	fmt.Fprintf(w, "  Headroom:       %.1f dB\n", m.NoiseReductionHeadroom)
	if m.MainsHz > 0 {
		fmt.Fprintf(w, "  Mains Hum:      %s dB at %d Hz\n", formatMetricDB(m.MainsHum, 1), m.MainsHz)
	} else {
		fmt.Fprintln(w, "  Mains Hum:      not detected")
	}
	fmt.Fprintln(w)

	writeAnalysisSection(w, "SPECTRAL SUMMARY")
	fmt.Fprintf(w, "  Centroid:       %.0f Hz (%s)\n", m.SpectralCentroid, interpretCentroid(m.SpectralCentroid))
	fmt.Fprintf(w, "  Rolloff:        %.0f Hz (%s)\n", m.SpectralRolloff, interpretRolloff(m.SpectralRolloff))
	fmt.Fprintln(w)

	in := TipInput{Measurements: m}
	if pc.Voice != nil && metadata.Duration > 0 {
		in.DeadAirRatio = pc.Voice.DeadAirDuration().Seconds() / metadata.Duration
	}
	if tips := GenerateRecordingTips(in); len(tips) > 0 {
		writeAnalysisSection(w, "RECORDING TIPS")
		for _, tip := range tips {
			fmt.Fprintf(w, "  - %s\n", wrapText(tip.Message, 66, "    "))
		}
		fmt.Fprintln(w)
	}
}

// longestDeadAir returns up to n dead-air regions, longest first.
func longestDeadAir(va *silence.Analysis, n int) []silence.Region {
	var out []silence.Region
	for _, r := range va.Regions {
		if r.Kind == silence.DeadAir {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Duration() > out[j].Duration()
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// writeAnalysisSection writes a section header for analysis output.
func writeAnalysisSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
}

// formatDurationHMS formats duration as "Xh Ym Zs" or "Ym Zs" or "Z.Xs".
func formatDurationHMS(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}

	totalSeconds := int(seconds)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	secs := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}

// formatTimestamp formats a duration as a timestamp string (e.g., "1m 32s" or "24.0s").
func formatTimestamp(d time.Duration) string {
	totalSeconds := d.Seconds()
	if totalSeconds < 60 {
		return fmt.Sprintf("%.1fs", totalSeconds)
	}

	minutes := int(totalSeconds) / 60
	seconds := math.Mod(totalSeconds, 60)

	if minutes >= 60 {
		hours := minutes / 60
		minutes = minutes % 60
		return fmt.Sprintf("%dh %dm %.0fs", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %.0fs", minutes, seconds)
}
