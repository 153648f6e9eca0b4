// Package ui provides the Bubbletea terminal user interface for takemaster
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/processor"
)

// TakeStatus represents the processing state of a single take
type TakeStatus int

const (
	StatusQueued TakeStatus = iota
	StatusCleaning
	StatusTrimming
	StatusComplete
	StatusError
)

// TakeProgress tracks progress for a single take
type TakeProgress struct {
	InputPath string
	ID        string
	Status    TakeStatus

	// Stage tracking within the current pass
	Phase     pipeline.Phase
	Stage     int
	Total     int
	Processor processor.FilterID

	Progress    float64 // 0.0 to 1.0
	StartTime   time.Time
	ElapsedTime time.Duration

	Result *pipeline.TakeResult
	Error  error
}

// Model is the Bubbletea model for the export UI
type Model struct {
	Takes          []TakeProgress
	TotalTakes     int
	CompletedTakes int
	FailedTakes    int

	// Phase is the export step after Pass 1 and Pass 2, empty until then.
	Phase     pipeline.Phase
	StartTime time.Time
	Done      bool
	Result    *pipeline.Result
	Err       error

	// cancel stops the export when the user quits early.
	cancel context.CancelFunc

	spinner spinner.Model
	bar     progress.Model

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a UI model for the given takes. cancel is called if the
// user quits before the export finishes; it may be nil.
func NewModel(takes []pipeline.TakeInput, cancel context.CancelFunc) Model {
	files := make([]TakeProgress, len(takes))
	for i, t := range takes {
		files[i] = TakeProgress{
			InputPath: t.Path,
			ID:        t.ID,
			Status:    StatusQueued,
		}
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		Takes:      files,
		TotalTakes: len(takes),
		StartTime:  time.Now(),
		cancel:     cancel,
		spinner:    s,
		bar:        progress.New(progress.WithGradient("#A40000", "#FFA500"), progress.WithWidth(40)),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.Done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if w := msg.Width - 20; w > 10 && w < 60 {
			m.bar.Width = w
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m = m.applyEvent(msg.Event)

	case ExportDoneMsg:
		m.Done = true
		m.Result = msg.Result
		m.Err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// applyEvent folds one pipeline event into the model.
func (m Model) applyEvent(e pipeline.Event) Model {
	switch e.Kind {
	case pipeline.PhaseStarted:
		if e.Phase != pipeline.PhasePass1 {
			m.Phase = e.Phase
		}
		return m
	case pipeline.ExportDone:
		m.Phase = pipeline.PhaseWrite
		return m
	}

	if e.Take < 0 || e.Take >= len(m.Takes) {
		return m
	}
	// Copy on write: the slice is shared with earlier model values.
	takes := append([]TakeProgress(nil), m.Takes...)
	tp := takes[e.Take]
	if e.TakeID != "" {
		tp.ID = e.TakeID
	}

	switch e.Kind {
	case pipeline.TakeStarted:
		tp.Status = StatusCleaning
		tp.Phase = pipeline.PhasePass1
		tp.StartTime = time.Now()

	case pipeline.StageDone:
		if e.Phase == pipeline.PhasePass2 {
			tp.Status = StatusTrimming
		} else {
			tp.Status = StatusCleaning
		}
		tp.Phase = e.Phase
		tp.Stage = e.Stage
		tp.Total = e.Total
		tp.Processor = e.Processor
		tp.Progress = e.Fraction

	case pipeline.TakeDone:
		tp.Result = e.Result
		tp.Error = e.Err
		tp.Progress = 1
		if e.Err != nil {
			tp.Status = StatusError
			m.FailedTakes++
		} else {
			tp.Status = StatusComplete
			m.CompletedTakes++
		}
	}
	if !tp.StartTime.IsZero() {
		tp.ElapsedTime = time.Since(tp.StartTime)
	}

	takes[e.Take] = tp
	m.Takes = takes
	return m
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return fmt.Sprintf("Initializing...\nTakes: %d\n", len(m.Takes))
	}

	if m.Done {
		return renderCompletionSummary(m)
	}

	return renderProcessingView(m)
}
