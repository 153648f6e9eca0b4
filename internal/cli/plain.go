package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/linuxmatters/takemaster/internal/pipeline"
)

// EventPrinter writes one line per pipeline event to w, for runs without the
// TUI. Stage events are printed only when verbose is set. It is safe for
// concurrent use.
func EventPrinter(w io.Writer, verbose bool) pipeline.ProgressFunc {
	var mu sync.Mutex
	return func(e pipeline.Event) {
		line := formatEvent(e, verbose)
		if line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, line)
	}
}

func formatEvent(e pipeline.Event, verbose bool) string {
	switch e.Kind {
	case pipeline.TakeStarted:
		return fmt.Sprintf("[%d] %s: started", e.Take+1, e.TakeID)

	case pipeline.StageDone:
		if !verbose {
			return ""
		}
		return fmt.Sprintf("[%d] %s: %s %d/%d %s", e.Take+1, e.TakeID, e.Phase, e.Stage, e.Total, e.Processor)

	case pipeline.TakeDone:
		if e.Err != nil {
			return fmt.Sprintf("[%d] %s: %s %v", e.Take+1, e.TakeID, ErrorStyle.Render("failed:"), e.Err)
		}
		if tr := e.Result; tr != nil {
			cached := ""
			if tr.Cached {
				cached = " (cached)"
			}
			return fmt.Sprintf("[%d] %s: %.1fs -> %.1fs, %.1f -> %.1f LUFS%s",
				e.Take+1, e.TakeID, tr.Input.Seconds(), tr.Output.Seconds(),
				tr.Quality.OriginalLUFS, tr.Quality.ProcessedLUFS, cached)
		}
		return fmt.Sprintf("[%d] %s: done", e.Take+1, e.TakeID)

	case pipeline.PhaseStarted:
		return fmt.Sprintf("== %s", e.Phase)

	case pipeline.ExportDone:
		return "== done"
	}
	return ""
}

// PrintSummary writes the outcome of an export.
func PrintSummary(w io.Writer, res *pipeline.Result) {
	q := res.Quality
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Master:"), ValueStyle.Render(res.MasterPath))
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Timing:"), filepath.Base(res.TimingPath))
	fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Report:"), filepath.Base(res.ReportPath))

	status := "within target"
	if !q.LUFSCompliant {
		status = "outside target"
	}
	fmt.Fprintf(w, "%s %.1f LUFS (target %.1f, %s), true peak %.1f dBTP\n",
		KeyStyle.Render("Loudness:"), q.ProcessedLUFS, q.TargetLUFS, status, q.TruePeakDBTP)
	if res.Timing != nil {
		fmt.Fprintf(w, "%s %.1fs (%.1fs removed)\n", KeyStyle.Render("Duration:"),
			res.Timing.ProcessedDuration().Seconds(), res.Timing.RemovedDuration().Seconds())
	}
	if res.Sync != nil {
		fmt.Fprintf(w, "%s %s, drift %+.3fs\n", KeyStyle.Render("Video sync:"), res.Sync.Strategy, res.Sync.Offset.Seconds())
	}
	for _, path := range []string{res.MasterPath, res.TimingPath, res.ReportPath} {
		if url, ok := res.Published[path]; ok {
			fmt.Fprintf(w, "%s %s\n", KeyStyle.Render("Published:"), url)
		}
	}
	fmt.Fprintf(w, "%s %.1fs\n", KeyStyle.Render("Elapsed:"), res.Duration.Seconds())
}
