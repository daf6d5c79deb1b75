package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/franksops/vmshift/engine"
)

const (
	workerBarWidth  = 30
	statusLineWidth = 80
)

// TUIModel implements the tea.Model interface for an orchestrator run.
type TUIModel struct {
	title string
	state engine.View

	done    bool
	failed  bool
	summary string

	// throughput is smoothed bytes per millisecond across all workers.
	throughput float64
	lastBytes  int64
	lastAt     time.Time

	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg carries a controller snapshot taken at At.
type TUIUpdateMsg struct {
	View engine.View
	At   time.Time
}

// DoneMsg is sent once the orchestrator has returned.
type DoneMsg struct {
	Response engine.Response
}

// ProgressFunc adapts a running program into an orchestrator progress
// callback.
func ProgressFunc(p *tea.Program) func(engine.View) {
	return func(v engine.View) {
		p.Send(TUIUpdateMsg{View: v, At: time.Now()})
	}
}

func NewTUIModel(title string) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		title:        title,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 14

		headerHeight := 6
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)

	case TUIUpdateMsg:
		m.observe(msg)

	case DoneMsg:
		m.done = true
		m.failed = msg.Response.Error
		m.summary = msg.Response.Summary
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *TUIModel) observe(msg TUIUpdateMsg) {
	m.state = msg.View
	done, _ := totals(msg.View)

	if !m.lastAt.IsZero() && msg.At.After(m.lastAt) && done >= m.lastBytes {
		ms := float64(msg.At.Sub(m.lastAt).Milliseconds())
		if ms > 0 {
			rate := float64(done-m.lastBytes) / ms
			if m.throughput == 0 {
				m.throughput = rate
			} else {
				m.throughput = 0.7*m.throughput + 0.3*rate
			}
		}
	}
	m.lastBytes = done
	m.lastAt = msg.At
}

func totals(v engine.View) (done, total int64) {
	for _, w := range v.Workers {
		done += w.Transferred
		total += w.Total
	}
	return done, total
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	// Header
	header := fmt.Sprintf("%s vmshift %s", m.spinner.View(), m.titleStyle.Render(m.title))
	sb.WriteString(header + "\n")

	// Global Progress
	done, total := totals(m.state)
	var percent float64 = 0
	if total > 0 {
		percent = float64(done) / float64(total)
	}

	slots := fmt.Sprintf("%d", m.state.Live)
	if m.state.MaxConcurrency > 0 {
		slots = fmt.Sprintf("%d/%d", m.state.Live, m.state.MaxConcurrency)
	}
	opsInfo := fmt.Sprintf("ETA: %s | Jobs: %s | Pending: %d | %s | %.2f GB / %.2f GB",
		formatETA(percent, m.throughput, total, done),
		slots, m.state.Pending,
		formatSpeed(m.throughput*1000),
		float64(done)/(1<<30), float64(total)/(1<<30))

	sb.WriteString(m.infoStyle.Render(opsInfo) + "\n")
	if m.state.AtCapacity {
		notice := fmt.Sprintf("No %s capacity is currently available. Retrying in %s or when a slot frees up.",
			m.state.Kind, m.state.RetryIn.Round(time.Second))
		sb.WriteString(m.errorStyle.Render(notice))
	}
	sb.WriteString("\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n\n")

	// Workers
	sb.WriteString("Jobs:\n")
	var streamContent strings.Builder

	if len(m.state.Workers) == 0 {
		streamContent.WriteString(m.infoStyle.Render("No jobs started yet..."))
	} else {
		for _, w := range m.state.Workers {
			streamContent.WriteString(m.renderWorker(w) + "\n")
		}
	}

	m.viewport.SetContent(streamContent.String())
	sb.WriteString(m.viewport.View())

	// Footer
	help := m.helpStyle.Render("q/ctrl+c: quit")
	if m.done {
		if m.failed {
			help = m.errorStyle.Render("No job succeeded.")
		} else {
			help = m.successStyle.Render("All jobs finished!")
		}
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

// truncateStatus clips s to statusLineWidth terminal cells.
func truncateStatus(s string) string {
	return ansi.Truncate(s, statusLineWidth, "...")
}

func (m TUIModel) renderWorker(w engine.WorkerView) string {
	status := truncateStatus(w.Status)

	switch {
	case w.Finished && w.OK:
		return m.successStyle.Render(status)
	case w.Finished:
		return m.errorStyle.Render(status)
	case w.Total > 0:
		// Format: [===       ] 30% | VM 42 (web): Downloading ...
		bar := m.progress
		bar.Width = workerBarWidth
		return fmt.Sprintf("%s | %s", bar.ViewAs(float64(w.Transferred)/float64(w.Total)), m.streamStyle.Render(status))
	default:
		return m.streamStyle.Render(status)
	}
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/(1024*1024*1024))
	} else if bytesPerSec >= 1024*1024 {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	} else if bytesPerSec >= 1024 {
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

func formatETA(progress float64, bytesPerMs float64, totalBytes, completedBytes int64) string {
	if progress == 0 || bytesPerMs <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	remainingMs := float64(remainingBytes) / bytesPerMs
	d := time.Duration(remainingMs) * time.Millisecond

	if d.Hours() > 24 {
		return "> 1d"
	}

	return d.Round(time.Second).String()
}
