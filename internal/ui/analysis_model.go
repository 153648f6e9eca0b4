package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AnalysisModel is the Bubbletea model for analysis-only mode
type AnalysisModel struct {
	Files   []string
	Current int // index of the file being analysed, -1 before the first
	Failed  map[int]error

	StartTime time.Time
	Done      bool

	spinner spinner.Model

	// Terminal dimensions
	Width  int
	Height int
}

// AnalysisStartMsg signals analysis of one file has started
type AnalysisStartMsg struct {
	Index int
}

// AnalysisCompleteMsg signals analysis of one file has finished
type AnalysisCompleteMsg struct {
	Index int
	Error error
}

// AnalysisDoneMsg signals every file has been analysed
type AnalysisDoneMsg struct{}

// NewAnalysisModel creates a new analysis UI model
func NewAnalysisModel(files []string) AnalysisModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)
	return AnalysisModel{
		Files:     files,
		Current:   -1,
		Failed:    make(map[int]error),
		StartTime: time.Now(),
		spinner:   s,
	}
}

// Init initializes the model
func (m AnalysisModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the model
func (m AnalysisModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case spinner.TickMsg:
		if m.Done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case AnalysisStartMsg:
		m.Current = msg.Index
		return m, nil

	case AnalysisCompleteMsg:
		if msg.Error != nil {
			m.Failed[msg.Index] = msg.Error
		}
		return m, nil

	case AnalysisDoneMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the UI
func (m AnalysisModel) View() string {
	if m.Width == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(primaryColor).
		Render("Takemaster")

	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render("Analysis Mode")

	b.WriteString(title + " " + subtitle)
	b.WriteString("\n\n")

	if m.Current < 0 || m.Current >= len(m.Files) {
		b.WriteString("Waiting...")
		return b.String()
	}

	fileStyle := lipgloss.NewStyle().
		Foreground(accentColor).
		Bold(true)

	b.WriteString(fmt.Sprintf("Analysing %d/%d: ", m.Current+1, len(m.Files)))
	b.WriteString(fileStyle.Render(filepath.Base(m.Files[m.Current])))
	b.WriteString("\n\n")

	if !m.Done {
		b.WriteString(m.spinner.View())
		b.WriteString(fmt.Sprintf(" Measuring... [%s]", formatElapsed(time.Since(m.StartTime))))
		b.WriteString("\n")
	}

	return b.String()
}

// formatElapsed formats elapsed time as MM:SS or HH:MM:SS
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
