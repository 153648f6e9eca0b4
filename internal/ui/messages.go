package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/takemaster/internal/pipeline"
)

// EventMsg carries a pipeline progress event into the UI loop.
type EventMsg struct {
	Event pipeline.Event
}

// ExportDoneMsg indicates the export has finished, successfully or not.
type ExportDoneMsg struct {
	Result *pipeline.Result
	Err    error
}

// Forward returns a progress function that sends every event to p.
func Forward(p *tea.Program) pipeline.ProgressFunc {
	return func(e pipeline.Event) {
		p.Send(EventMsg{Event: e})
	}
}
