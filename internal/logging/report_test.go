package logging

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/takemaster/internal/assembly"
	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/silence"
	"github.com/linuxmatters/takemaster/internal/timing"
)

func sampleTake() pipeline.TakeResult {
	return pipeline.TakeResult{
		ID:         "intro",
		InputPath:  "/recordings/intro.wav",
		SampleRate: 48000,
		Channels:   1,
		Input:      5 * time.Second,
		Output:     3 * time.Second,
		Timing: timing.NewBuilder(1000).
			Keep(1000).Remove(2000, timing.SilenceTrimmed).Keep(2000).Build(),
		Measured: &processor.AudioMeasurements{
			InputI:                 -27,
			InputTP:                -4,
			NoiseFloor:             -62,
			SpectralCentroid:       1800,
			SpectralRolloff:        5200,
			RMSLevel:               -30,
			NoiseReductionHeadroom: 30,
			MainsHum:               -20,
		},
		Analyses: []processor.Analysis{
			{
				Processor: processor.FilterHighpass,
				Metrics:   map[string]float64{"frequency_hz": 80},
				Notes:     []string{"rumble below the voice removed"},
			},
			{Processor: processor.FilterDeadAirTrim},
		},
		Quality: pipeline.QualityReport{
			OriginalLUFS:  -27,
			ProcessedLUFS: -18.2,
			NoiseFloorDB:  -71,
			PeakDBFS:      -2.5,
			TruePeakDBTP:  -2.1,
			TargetLUFS:    -16,
		},
		Pass1Time: 300 * time.Millisecond,
		Pass2Time: 50 * time.Millisecond,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func assertContains(t *testing.T, report string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(report, w) {
			t.Errorf("report does not contain %q:\n%s", w, report)
		}
	}
}

func TestGenerateReport(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	path, err := GenerateReport(dir, ReportData{
		JobID:     "job-1",
		Preset:    "podcast",
		Take:      sampleTake(),
		StartTime: start,
		EndTime:   start.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if path != filepath.Join(dir, "intro-analysis.log") {
		t.Errorf("path = %s", path)
	}

	report := readFile(t, path)
	assertContains(t, report,
		"Takemaster Take Report",
		"File: intro.wav",
		"Take: intro (48000 Hz, mono)",
		"Preset: podcast",
		"Pass 1 (Cleanup):     0.3s",
		"(5x real-time)",
		"Removed: 2.0s (40%)",
		"silence_trimmed at 1.0s: 2.0s",
		" 1. highpass  frequency_hz=80.00",
		"rumble below the voice removed",
		" 2. dead_air_trim",
		"Integrated Loudness",
		"-18.2",
		"+8.8",
		"excellent, studio quiet",
		"balanced, natural voice",
		"Recording Tips",
		"bit quiet",
	)
}

func TestGenerateReportCachedTake(t *testing.T) {
	tr := sampleTake()
	tr.Cached = true
	tr.Measured = nil
	tr.Analyses = nil

	var b bytes.Buffer
	writeTakeReport(&b, ReportData{Take: tr})
	report := b.String()

	assertContains(t, report, "Pass 1 (Cleanup):     cached", "(no processing)", "Nothing to improve")
	if strings.Contains(report, "Noise Floor Analysis") {
		t.Error("noise table written without input measurements")
	}
}

func TestGenerateProjectReport(t *testing.T) {
	dir := t.TempDir()
	sync, err := avsync.Compensate(timing.Identity(61*time.Second), timing.Identity(60*time.Second), avsync.Options{})
	if err != nil {
		t.Fatalf("Compensate() error = %v", err)
	}

	outro := sampleTake()
	outro.ID = "outro"
	outro.Cached = true

	res := &pipeline.Result{
		JobID:       "job-1",
		Preset:      "podcast",
		Fingerprint: strings.Repeat("ab", 32),
		Takes:       []pipeline.TakeResult{sampleTake(), outro},
		Transitions: []assembly.Transition{{
			From:    "intro",
			To:      "outro",
			Kind:    assembly.Crossfade,
			Shape:   assembly.EqualPower,
			At:      2960 * time.Millisecond,
			Overlap: 40 * time.Millisecond,
		}},
		Mastering: &assembly.MasterResult{
			Before: processor.Loudness{Integrated: -21.4, Range: 9, TruePeakDB: -3},
			After:  processor.Loudness{Integrated: -16.1, Range: 6.5, TruePeakDB: -1.2},
			Ratios: [3]float64{2, 3, 2.5},
		},
		Timing:     timing.Identity(61 * time.Second),
		Sync:       sync,
		Quality:    pipeline.QualityReport{TargetLUFS: -16, ProcessedLUFS: -16.1, OriginalLUFS: -21.4, LUFSCompliant: true},
		MasterPath: filepath.Join(dir, "episode-mastered.wav"),
		TimingPath: filepath.Join(dir, "episode-timing.json"),
		ReportPath: filepath.Join(dir, "episode-report.json"),
		Published: map[string]string{
			filepath.Join(dir, "episode-mastered.wav"): "https://bucket.s3.eu-west-2.amazonaws.com/episode-mastered.wav",
		},
		Duration: 4 * time.Second,
	}

	path, err := GenerateProjectReport(dir, "episode", res, time.Now())
	if err != nil {
		t.Fatalf("GenerateProjectReport() error = %v", err)
	}
	if path != filepath.Join(dir, "episode-analysis.log") {
		t.Errorf("path = %s", path)
	}

	report := readFile(t, path)
	assertContains(t, report,
		"Takemaster Export Report",
		"File: episode-mastered.wav",
		"Preset: podcast (abababababab)",
		"Duration: 1m 1s",
		"outro (cached)",
		"intro -> outro: crossfade (equal_power) at 3.0s, overlap 40ms",
		"Multiband ratios: 2.0:1 / 3.0:1 / 2.5:1",
		"+5.3",
		"-21.4",
		"Video Sync",
		"strategy: visual_transition",
		"Video adjusted by",
		"within tolerance: yes",
		"episode-mastered.wav: https://bucket.s3.eu-west-2.amazonaws.com/episode-mastered.wav",
	)
}

func TestDisplayAnalysisResults(t *testing.T) {
	const rate = 48000
	buf, err := audio.NewBuffer(1, 5*rate, rate)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(7))
	noise := audio.DBToLinear(-60)
	tone := audio.DBToLinear(-20)
	for i := range buf.Samples[0] {
		v := noise * (rng.Float64()*2 - 1)
		if i >= 2*rate && i < 3*rate {
			v += tone * math.Sin(2*math.Pi*220*float64(i)/rate)
		}
		buf.Samples[0][i] = float32(v)
	}

	pc, err := processor.NewContext(buf)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}

	var b bytes.Buffer
	DisplayAnalysisResults(&b, "/recordings/take.wav", &audio.Metadata{Duration: 5, SampleRate: rate, Channels: 1, BitDepth: 24}, pc)

	assertContains(t, b.String(),
		"ANALYSIS: take.wav",
		"Duration:    5.0s",
		"Bit Depth:   24",
		"LOUDNESS",
		"VOICE ACTIVITY",
		"Dead Air:",
		"#1:",
		"SPECTRAL SUMMARY",
	)
}

func TestLongestDeadAir(t *testing.T) {
	va := &silence.Analysis{}
	var at time.Duration
	for _, secs := range []int{2, 5, 1, 4} {
		d := time.Duration(secs) * time.Second
		va.Regions = append(va.Regions,
			silence.Region{Start: at, End: at + time.Second, Kind: silence.Voice},
			silence.Region{Start: at + time.Second, End: at + time.Second + d, Kind: silence.DeadAir},
		)
		at += time.Second + d
	}

	got := longestDeadAir(va, 3)
	if len(got) != 3 {
		t.Fatalf("got %d regions, want 3", len(got))
	}
	for i, want := range []time.Duration{5 * time.Second, 4 * time.Second, 2 * time.Second} {
		if got[i].Duration() != want {
			t.Errorf("region %d = %v, want %v", i, got[i].Duration(), want)
		}
	}
}
