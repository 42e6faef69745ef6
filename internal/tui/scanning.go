package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/digggggmori-pixel/ferret-bam/internal/scan"
)

// Step names for display, indexed by Progress.Step-1
var stepNames = []string{"Read BAM", "Replaces", "Analyze", "Aggregate"}

// ScanningModel represents the scan-in-progress screen.
type ScanningModel struct {
	width, height int

	progress  scan.Progress
	startTime time.Time
	done      bool

	progressBar progress.Model
	spinner     spinner.Model
}

func NewScanningModel() ScanningModel {
	prog := progress.New(
		progress.WithGradient(string(ColorAccentDim), string(ColorAccent)),
		progress.WithoutPercentage(),
	)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	return ScanningModel{
		progress: scan.Progress{
			Total:    len(stepNames),
			StepName: "Initializing...",
		},
		startTime:   time.Now(),
		progressBar: prog,
		spinner:     sp,
	}
}

func (m ScanningModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ScanningModel) Update(msg tea.Msg) (ScanningModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case progressMsg:
		m.progress = scan.Progress(msg)
		if m.progress.Done {
			m.done = true
		}
		cmds = append(cmds, m.progressBar.SetPercent(float64(m.progress.Percent)/100))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Forward to progress bar for animation
	progModel, cmd := m.progressBar.Update(msg)
	m.progressBar = progModel.(progress.Model)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m ScanningModel) View() string {
	w := m.width
	if w < 40 {
		w = 60
	}

	var b strings.Builder
	header := TitleStyle.Render("Scanning") + "  " +
		SubtitleStyle.Render(fmt.Sprintf("%.0fs elapsed", time.Since(m.startTime).Seconds()))
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(SeparatorStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n\n")

	indicator := m.spinner.View()
	if m.done {
		indicator = lipgloss.NewStyle().Foreground(ColorSuccess).Render("✓")
	}
	b.WriteString(indicator + " " + StepActive.Render(m.progress.StepName))
	if m.progress.Detail != "" {
		b.WriteString("  " + SubtitleStyle.Render(m.progress.Detail))
	}
	b.WriteString("\n\n")

	m.progressBar.Width = min(w-8, 70)
	b.WriteString(m.progressBar.View())
	b.WriteString(fmt.Sprintf(" %3d%%", m.progress.Percent))
	b.WriteString("\n\n")

	b.WriteString(renderSteps(m.progress.Step, m.done))
	b.WriteString("\n")

	return b.String()
}

// renderSteps draws the step strip, e.g. "✓ Read BAM  ● Replaces  ○ Analyze"
func renderSteps(current int, done bool) string {
	parts := make([]string, len(stepNames))
	for i, name := range stepNames {
		step := i + 1
		switch {
		case done || step < current:
			parts[i] = StepDone.Render("✓ " + name)
		case step == current:
			parts[i] = StepActive.Render("● " + name)
		default:
			parts[i] = StepPending.Render("○ " + name)
		}
	}
	return strings.Join(parts, "  ")
}
