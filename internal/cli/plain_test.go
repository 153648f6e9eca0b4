package cli

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/timing"
)

func TestFormatEvent(t *testing.T) {
	tr := &pipeline.TakeResult{
		Input:   4 * time.Second,
		Output:  3 * time.Second,
		Quality: pipeline.QualityReport{OriginalLUFS: -24, ProcessedLUFS: -18.5},
		Cached:  true,
	}
	stage := pipeline.Event{
		Kind: pipeline.StageDone, Phase: pipeline.PhasePass1, Take: 1, TakeID: "b",
		Stage: 2, Total: 5, Processor: processor.FilterGate,
	}

	tests := []struct {
		name    string
		event   pipeline.Event
		verbose bool
		want    string
	}{
		{"started", pipeline.Event{Kind: pipeline.TakeStarted, Take: 0, TakeID: "a"}, false, "[1] a: started"},
		{"stage hidden", stage, false, ""},
		{"stage verbose", stage, true, "[2] b: pass1 2/5 gate"},
		{"done", pipeline.Event{Kind: pipeline.TakeDone, TakeID: "a", Result: tr}, false, "[1] a: 4.0s -> 3.0s, -24.0 -> -18.5 LUFS (cached)"},
		{"phase", pipeline.Event{Kind: pipeline.PhaseStarted, Phase: pipeline.PhaseMastering}, false, "== mastering"},
		{"export", pipeline.Event{Kind: pipeline.ExportDone}, false, "== done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEvent(tt.event, tt.verbose))
		})
	}

	failed := formatEvent(pipeline.Event{Kind: pipeline.TakeDone, TakeID: "a", Err: errors.New("boom")}, false)
	assert.True(t, strings.HasPrefix(failed, "[1] a: "))
	assert.Contains(t, failed, "boom")
}

func TestEventPrinterConcurrent(t *testing.T) {
	var buf bytes.Buffer
	emit := EventPrinter(&buf, false)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emit(pipeline.Event{Kind: pipeline.TakeStarted, Take: i, TakeID: "t"})
		}()
	}
	wg.Wait()

	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 8)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &pipeline.Result{
		MasterPath: "/out/show-mastered.wav",
		TimingPath: "/out/show-timing.json",
		ReportPath: "/out/show-report.json",
		Timing:     timing.NewBuilder(1000).Keep(3000).Remove(1000, timing.SilenceTrimmed).Build(),
		Quality:    pipeline.QualityReport{ProcessedLUFS: -16.2, TargetLUFS: -16, LUFSCompliant: true, TruePeakDBTP: -1.4},
		Published:  map[string]string{"/out/show-timing.json": "s3://bucket/show-timing.json"},
		Duration:   2 * time.Second,
	})

	out := buf.String()
	assert.Contains(t, out, "/out/show-mastered.wav")
	assert.Contains(t, out, "show-timing.json")
	assert.Contains(t, out, "-16.2 LUFS (target -16.0, within target)")
	assert.Contains(t, out, "3.0s (1.0s removed)")
	assert.Contains(t, out, "s3://bucket/show-timing.json")
	assert.NotContains(t, out, "Video sync")
}
