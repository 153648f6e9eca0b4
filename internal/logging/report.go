// Package logging writes the human-readable analysis reports that sit next to
// an export: one per take and one for the mastered programme.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/processor"
)

// interpretCentroid describes spectral "brightness" based on centre of gravity.
//
// Reference values for speech:
// - Male voiced speech: 500-2500 Hz
// - Female voiced speech: 800-3500 Hz
// - Unvoiced consonants: 3000-8000+ Hz
func interpretCentroid(hz float64) string {
	switch {
	case hz < 500:
		return "very dark, bass-heavy"
	case hz < 1500:
		return "warm, full-bodied"
	case hz < 2500:
		return "balanced, natural voice"
	case hz < 4000:
		return "present, forward"
	case hz < 6000:
		return "bright, crisp"
	default:
		return "very bright, potentially harsh"
	}
}

// interpretRolloff describes effective bandwidth via the 85% energy threshold.
func interpretRolloff(hz float64) string {
	switch {
	case hz < 2000:
		return "dark, muffled, heavy filtering"
	case hz < 4000:
		return "warm, controlled high frequencies"
	case hz < 7000:
		return "balanced brightness, natural speech"
	case hz < 11000:
		return "bright, airy, good articulation"
	default:
		return "very bright, significant sibilance"
	}
}

// interpretNoiseFloor grades a noise floor in dBFS.
func interpretNoiseFloor(db float64) string {
	switch {
	case db <= -70:
		return "excellent, studio quiet"
	case db <= -60:
		return "good"
	case db <= -50:
		return "noticeable in pauses"
	default:
		return "noisy"
	}
}

// writeSection writes a section header with title and dashed underline.
// The underline length matches the title length.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// ReportData contains everything needed to write one take's analysis report.
type ReportData struct {
	JobID     string
	Preset    string
	Take      pipeline.TakeResult
	StartTime time.Time
	EndTime   time.Time
}

// TakeReportPath is where GenerateReport writes the report for take id.
func TakeReportPath(dir, id string) string {
	return filepath.Join(dir, id+"-analysis.log")
}

// ProjectReportPath is where GenerateProjectReport writes the programme report.
func ProjectReportPath(dir, name string) string {
	return filepath.Join(dir, name+"-analysis.log")
}

// GenerateReport writes <take>-analysis.log into dir and returns its path.
//
// Report structure:
// 1. Header - file info and timestamp
// 2. Processing Summary - pass timings
// 3. Voice Activity - dead air removed
// 4. Filter Chain Applied - per-stage analysis
// 5. Loudness, Noise and Spectrum - Input/Output tables
// 6. Recording Tips
func GenerateReport(dir string, data ReportData) (string, error) {
	var b bytes.Buffer
	writeTakeReport(&b, data)

	path := TakeReportPath(dir, data.Take.ID)
	if err := audio.WriteFileAtomic(path, b.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write analysis report: %w", err)
	}
	return path, nil
}

func writeTakeReport(w io.Writer, data ReportData) {
	tr := data.Take

	writeReportHeader(w, "Takemaster Take Report", filepath.Base(tr.InputPath), data.EndTime, tr.Input)
	fmt.Fprintf(w, "Take: %s (%d Hz, %s)\n", tr.ID, tr.SampleRate, channelName(tr.Channels))
	fmt.Fprintf(w, "Preset: %s\n", data.Preset)
	fmt.Fprintf(w, "Export: %s\n", data.JobID)
	fmt.Fprintln(w, "")

	writeProcessingSummary(w, tr, data.EndTime.Sub(data.StartTime))
	writeVoiceActivity(w, tr)
	writeFilterChainApplied(w, tr.Analyses)
	writeTakeTables(w, tr)
	writeRecordingTips(w, GenerateRecordingTips(TipInputFor(tr)))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// channelName returns a human-readable channel name
func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}

func writeReportHeader(w io.Writer, title, file string, at time.Time, d time.Duration) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "File: %s\n", file)
	fmt.Fprintf(w, "Processed: %s\n", at.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(d))
}

// writeProcessingSummary outputs the processing time for both passes.
func writeProcessingSummary(w io.Writer, tr pipeline.TakeResult, total time.Duration) {
	writeSection(w, "Processing Summary")

	if tr.Cached {
		fmt.Fprintln(w, "Pass 1 (Cleanup):     cached")
	} else {
		fmt.Fprintf(w, "Pass 1 (Cleanup):     %s\n", formatDuration(tr.Pass1Time))
	}
	fmt.Fprintf(w, "Pass 2 (Dead air):    %s\n", formatDuration(tr.Pass2Time))
	fmt.Fprintf(w, "Total:                %s", formatDuration(total))
	if total > 0 && tr.Input > 0 {
		fmt.Fprintf(w, " (%.0fx real-time)", float64(tr.Input)/float64(total))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "")
}

func writeVoiceActivity(w io.Writer, tr pipeline.TakeResult) {
	writeSection(w, "Voice Activity")

	fmt.Fprintf(w, "Input:   %s\n", formatDuration(tr.Input))
	fmt.Fprintf(w, "Output:  %s\n", formatDuration(tr.Output))
	if tr.Timing == nil {
		fmt.Fprintln(w, "")
		return
	}
	removed := tr.Timing.RemovedDuration()
	fmt.Fprintf(w, "Removed: %s", formatDuration(removed))
	if orig := tr.Timing.OriginalDuration(); orig > 0 {
		fmt.Fprintf(w, " (%.0f%%)", 100*float64(removed)/float64(orig))
	}
	fmt.Fprintln(w, "")

	for _, s := range tr.Timing.Changes() {
		fmt.Fprintf(w, "  %s at %s: %s\n", s.Reason, formatTimestamp(s.OriginalStart), formatDuration(s.OriginalLength()))
	}
	fmt.Fprintln(w, "")
}

// writeFilterChainApplied lists each stage in chain order with its metrics
// and notes.
func writeFilterChainApplied(w io.Writer, analyses []processor.Analysis) {
	writeSection(w, "Filter Chain Applied")
	if len(analyses) == 0 {
		fmt.Fprintln(w, "(no processing)")
		fmt.Fprintln(w, "")
		return
	}
	for i, a := range analyses {
		fmt.Fprintf(w, "%2d. %s", i+1, a.Processor)
		if s := a.Summary(); s != "" {
			fmt.Fprintf(w, "  %s", s)
		}
		fmt.Fprintln(w, "")
		for _, note := range a.Notes {
			fmt.Fprintf(w, "      %s\n", wrapText(note, 66, "      "))
		}
	}
	fmt.Fprintln(w, "")
}

func writeTakeTables(w io.Writer, tr pipeline.TakeResult) {
	in := tr.Measured
	q := tr.Quality
	inTP, inPeak := math.NaN(), math.NaN()
	if in != nil {
		inTP, inPeak = in.InputTP, in.PeakLevel
	}

	writeSection(w, "Loudness Measurements")
	table := NewMetricTable()
	table.ShowChange = true
	table.AddMetricRow("Integrated Loudness", []float64{q.OriginalLUFS, q.ProcessedLUFS}, formatMetricLUFS, 1, "LUFS", "")
	table.AddMetricRow("True Peak", []float64{inTP, q.TruePeakDBTP}, formatMetricDB, 1, "dBTP", "")
	table.AddMetricRow("Sample Peak", []float64{inPeak, q.PeakDBFS}, formatMetricDB, 1, "dBFS", "")
	table.AddMetricRow("Loudness Range", []float64{q.OriginalLRA, q.ProcessedLRA}, formatMetric, 1, "LU", "")
	table.AddMetricRow("Dynamic Range", []float64{q.OriginalDynamicRange, q.ProcessedDynamicRange}, formatMetric, 1, "dB", "")
	fmt.Fprint(w, table.String())
	if q.ClippingEvents > 0 {
		fmt.Fprintf(w, "Clipping events: %d\n", q.ClippingEvents)
	}
	fmt.Fprintln(w, "")

	if in == nil {
		return
	}

	writeSection(w, "Noise Floor Analysis")
	table = NewMetricTable()
	table.AddMetricRow("Noise Floor", []float64{in.NoiseFloor, q.NoiseFloorDB}, formatMetricDB, 1, "dBFS", interpretNoiseFloor(q.NoiseFloorDB))
	table.AddMetricRow("Speech Headroom", []float64{in.NoiseReductionHeadroom, math.NaN()}, formatMetric, 1, "dB", "")
	hum := ""
	if in.MainsHz > 0 {
		hum = fmt.Sprintf("%d Hz", in.MainsHz)
	}
	table.AddMetricRow("Mains Hum Share", []float64{in.MainsHum, math.NaN()}, formatMetricDB, 1, "dB", hum)
	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")

	writeSection(w, "Speech Spectrum")
	table = NewMetricTable("Input")
	table.AddMetricRow("Centroid", []float64{in.SpectralCentroid}, formatMetric, 0, "Hz", interpretCentroid(in.SpectralCentroid))
	table.AddMetricRow("Rolloff", []float64{in.SpectralRolloff}, formatMetric, 0, "Hz", interpretRolloff(in.SpectralRolloff))
	table.AddMetricRow("RMS Level", []float64{in.RMSLevel}, formatMetricDB, 1, "dBFS", "")
	table.AddMetricRow("Quietest Speech", []float64{in.RMSTrough}, formatMetricDB, 1, "dBFS", "")
	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

func writeRecordingTips(w io.Writer, tips []RecordingTip) {
	writeSection(w, "Recording Tips")
	if len(tips) == 0 {
		fmt.Fprintln(w, "Nothing to improve - this take was recorded well.")
		return
	}
	for i, tip := range tips {
		fmt.Fprintf(w, "%d. %s\n", i+1, wrapText(tip.Message, 72, "   "))
	}
}

// GenerateProjectReport writes <name>-analysis.log for the whole export into
// dir and returns its path.
func GenerateProjectReport(dir, name string, res *pipeline.Result, start time.Time) (string, error) {
	var b bytes.Buffer
	writeProjectReport(&b, res, start)

	path := ProjectReportPath(dir, name)
	if err := audio.WriteFileAtomic(path, b.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write project report: %w", err)
	}
	return path, nil
}

func writeProjectReport(w io.Writer, res *pipeline.Result, start time.Time) {
	var programme time.Duration
	if res.Timing != nil {
		programme = res.Timing.ProcessedDuration()
	}
	writeReportHeader(w, "Takemaster Export Report", filepath.Base(res.MasterPath), start.Add(res.Duration), programme)
	fmt.Fprintf(w, "Preset: %s (%s)\n", res.Preset, shortFingerprint(res.Fingerprint))
	fmt.Fprintf(w, "Export: %s\n", res.JobID)
	fmt.Fprintf(w, "Took:   %s\n", formatDuration(res.Duration))
	fmt.Fprintln(w, "")

	writeSection(w, "Takes")
	table := NewMetricTable("Input", "Output", "Removed", "LUFS")
	for _, tr := range res.Takes {
		var removed time.Duration
		if tr.Timing != nil {
			removed = tr.Timing.RemovedDuration()
		}
		label := tr.ID
		if tr.Cached {
			label += " (cached)"
		}
		table.AddRow(label, []string{
			formatDuration(tr.Input),
			formatDuration(tr.Output),
			formatDuration(removed),
			formatMetricLUFS(tr.Quality.ProcessedLUFS, 1),
		}, "", "")
	}
	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")

	if len(res.Transitions) > 0 {
		writeSection(w, "Transitions")
		for _, t := range res.Transitions {
			fmt.Fprintf(w, "%s -> %s: %s", t.From, t.To, t.Kind)
			if t.Shape != "" {
				fmt.Fprintf(w, " (%s)", t.Shape)
			}
			fmt.Fprintf(w, " at %s, overlap %dms", formatTimestamp(t.At), t.Overlap.Milliseconds())
			if t.Reason != "" {
				fmt.Fprintf(w, ", %s", t.Reason)
			}
			fmt.Fprintln(w, "")
		}
		fmt.Fprintln(w, "")
	}

	if m := res.Mastering; m != nil {
		writeSection(w, "Mastering")
		table := NewMetricTable("Before", "After")
		table.ShowChange = true
		table.AddMetricRow("Integrated Loudness", []float64{m.Before.Integrated, m.After.Integrated}, formatMetricLUFS, 1, "LUFS", "")
		table.AddMetricRow("Loudness Range", []float64{m.Before.Range, m.After.Range}, formatMetric, 1, "LU", "")
		table.AddMetricRow("True Peak", []float64{m.Before.TruePeakDB, m.After.TruePeakDB}, formatMetricDB, 1, "dBTP", "")
		fmt.Fprint(w, table.String())
		fmt.Fprintf(w, "Multiband ratios: %.1f:1 / %.1f:1 / %.1f:1\n", m.Ratios[0], m.Ratios[1], m.Ratios[2])
		fmt.Fprintln(w, "")
	}

	if s := res.Sync; s != nil {
		writeSyncSection(w, s)
	}

	writeSection(w, "Quality")
	q := res.Quality
	compliant := "no"
	if q.LUFSCompliant {
		compliant = "yes"
	}
	fmt.Fprintf(w, "Target:    %s LUFS (within tolerance: %s)\n", formatMetric(q.TargetLUFS, 1), compliant)
	fmt.Fprintf(w, "Loudness:  %s -> %s LUFS\n", formatMetricLUFS(q.OriginalLUFS, 1), formatMetricLUFS(q.ProcessedLUFS, 1))
	fmt.Fprintf(w, "True peak: %s dBTP\n", formatMetricDB(q.TruePeakDBTP, 1))
	fmt.Fprintf(w, "Clipping:  %d events\n", q.ClippingEvents)
	if len(res.Published) > 0 {
		fmt.Fprintln(w, "")
		writeSection(w, "Published")
		for _, path := range []string{res.MasterPath, res.TimingPath, res.ReportPath} {
			if url, ok := res.Published[path]; ok {
				fmt.Fprintf(w, "%s: %s\n", filepath.Base(path), url)
			}
		}
	}
}

func writeSyncSection(w io.Writer, s *avsync.Compensation) {
	writeSection(w, "Video Sync")
	fmt.Fprintf(w, "Audio: %s, video: %s\n", formatTimestamp(s.AudioDuration), formatTimestamp(s.VideoDuration))
	fmt.Fprintf(w, "Drift: %s, strategy: %s\n", formatMetricSigned(s.Offset.Seconds(), 3)+"s", s.Strategy)
	switch s.Strategy {
	case avsync.VolumeAutomation:
		fmt.Fprintf(w, "Audio adjusted by %ss under a %s fade\n", formatMetricSigned(s.AudioAdjust.Seconds(), 3), formatDuration(s.Fade))
	case avsync.VisualTransition, avsync.TrimVideo:
		fmt.Fprintf(w, "Video adjusted by %ss at %s\n", formatMetricSigned(s.VideoAdjust.Seconds(), 3), formatTimestamp(s.At))
	}
	fmt.Fprintf(w, "Residual: %.3fs (tolerance %.3fs)\n", s.Residual.Seconds(), s.Tolerance.Seconds())
	fmt.Fprintln(w, "")
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
