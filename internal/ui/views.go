package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/takemaster/internal/pipeline"
)

var (
	primaryColor = lipgloss.Color("#A40000")
	accentColor  = lipgloss.Color("#FFA500")
	okColor      = lipgloss.Color("#00AA00")
	mutedColor   = lipgloss.Color("#888888")

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

var phaseNames = map[pipeline.Phase]string{
	pipeline.PhasePass1:     "Cleaning takes",
	pipeline.PhasePass2:     "Removing dead air",
	pipeline.PhaseAssembly:  "Joining takes",
	pipeline.PhaseMastering: "Mastering",
	pipeline.PhaseSync:      "Matching video",
	pipeline.PhaseWrite:     "Writing files",
}

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(renderTakeQueue(m))
	b.WriteString("\n")

	b.WriteString(renderOverallProgress(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor).
		Render("Takemaster 🎬 - Voice Take Mastering")

	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render(fmt.Sprintf("Mastering %d take(s)", m.TotalTakes))

	return title + "\n" + subtitle
}

// renderTakeQueue renders the list of takes with their status
func renderTakeQueue(m Model) string {
	var b strings.Builder

	for _, take := range m.Takes {
		b.WriteString(renderTakeEntry(m, take))
		b.WriteString("\n")
	}

	return b.String()
}

func takeLabel(take TakeProgress) string {
	name := filepath.Base(take.InputPath)
	if take.ID != "" && !strings.HasPrefix(name, take.ID+".") {
		return fmt.Sprintf("%s (%s)", name, take.ID)
	}
	return name
}

// renderTakeEntry renders a single take in the queue
func renderTakeEntry(m Model, take TakeProgress) string {
	label := takeLabel(take)

	switch take.Status {
	case StatusComplete:
		icon := lipgloss.NewStyle().Foreground(okColor).Render("✓")
		return fmt.Sprintf(" %s %s\n   %s", icon, label, takeSummary(take.Result))

	case StatusCleaning, StatusTrimming:
		return fmt.Sprintf(" %s %s\n%s", m.spinner.View(), label, renderTakeDetails(m, take))

	case StatusError:
		icon := lipgloss.NewStyle().Foreground(primaryColor).Render("✗")
		return fmt.Sprintf(" %s %s\n   Error: %v", icon, label, take.Error)

	default:
		icon := mutedStyle.Render("○")
		return fmt.Sprintf(" %s %s\n   %s", icon, label, mutedStyle.Render("Queued..."))
	}
}

// takeSummary is the one-line result of a finished take.
func takeSummary(tr *pipeline.TakeResult) string {
	if tr == nil {
		return ""
	}
	cached := ""
	if tr.Cached {
		cached = " | cached"
	}
	return fmt.Sprintf("%.1fs → %.1fs | %.1f → %.1f LUFS%s",
		tr.Input.Seconds(), tr.Output.Seconds(),
		tr.Quality.OriginalLUFS, tr.Quality.ProcessedLUFS, cached)
}

// renderTakeDetails renders detailed progress for an active take
func renderTakeDetails(m Model, take TakeProgress) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(0, 1).
		Width(60)

	var content strings.Builder

	pass := 1
	if take.Status == StatusTrimming {
		pass = 2
	}
	content.WriteString(fmt.Sprintf("Pass %d/2: %s\n", pass, phaseNames[take.Phase]))
	content.WriteString(m.bar.ViewAs(take.Progress))
	content.WriteString("\n")

	if take.Total > 0 {
		content.WriteString(fmt.Sprintf("Stage %d/%d: %s\n", take.Stage, take.Total, take.Processor))
	}

	elapsed := take.ElapsedTime.Seconds()
	var remaining float64
	if take.Progress > 0 {
		remaining = (elapsed / take.Progress) - elapsed
	}
	content.WriteString(fmt.Sprintf("⏱  Elapsed: %.1fs | Remaining: ~%.1fs", elapsed, remaining))

	return box.Render(content.String())
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(60)

	var content string
	if m.Phase != "" {
		content = fmt.Sprintf("%s %s...", m.spinner.View(), phaseNames[m.Phase])
	} else {
		content = fmt.Sprintf("Takes: %d/%d complete", m.CompletedTakes, m.TotalTakes)
		if m.FailedTakes > 0 {
			content += fmt.Sprintf(", %d failed", m.FailedTakes)
		}
	}

	return box.Render(content)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	if m.Err != nil {
		header := lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Render("✗ Export failed")
		b.WriteString(header)
		b.WriteString("\n\n")
		b.WriteString(m.Err.Error())
		b.WriteString("\n")
		return b.String()
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(okColor).
		Render("✨ Export Complete!")
	b.WriteString(header)
	b.WriteString("\n\n")

	for _, take := range m.Takes {
		if take.Status == StatusComplete {
			icon := lipgloss.NewStyle().Foreground(okColor).Render("✓")
			b.WriteString(fmt.Sprintf(" %s %s\n   %s\n", icon, takeLabel(take), takeSummary(take.Result)))
		}
	}

	res := m.Result
	if res == nil {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")
	q := res.Quality
	mark := "✓"
	if !q.LUFSCompliant {
		mark = "✗"
	}
	b.WriteString(fmt.Sprintf("Master: %s\n", filepath.Base(res.MasterPath)))
	b.WriteString(fmt.Sprintf("Loudness: %.1f LUFS (target %.1f) %s | True peak: %.1f dBTP\n",
		q.ProcessedLUFS, q.TargetLUFS, mark, q.TruePeakDBTP))
	if res.Timing != nil {
		b.WriteString(fmt.Sprintf("Duration: %.1fs\n", res.Timing.ProcessedDuration().Seconds()))
	}
	if res.Sync != nil {
		b.WriteString(fmt.Sprintf("Video sync: %s (drift %+.3fs)\n", res.Sync.Strategy, res.Sync.Offset.Seconds()))
	}
	if url, ok := res.Published[res.MasterPath]; ok {
		b.WriteString(fmt.Sprintf("Published: %s\n", url))
	}

	return b.String()
}
