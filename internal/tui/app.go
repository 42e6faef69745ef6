package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/digggggmori-pixel/ferret-bam/internal/output"
	"github.com/digggggmori-pixel/ferret-bam/internal/scan"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// ── Page enum ──

type page int

const (
	pageHome page = iota
	pageScanning
	pageResults
)

// ── Custom messages ──

type tickMsg time.Time

type progressMsg scan.Progress

type scanDoneMsg struct {
	result *types.ScanResult
	err    string
}

// exportDoneMsg carries the saved path or an error line
type exportDoneMsg string

// ServiceFactory builds a fresh scan service reporting on ch
type ServiceFactory func(ch chan scan.Progress) *scan.Service

// Options configures the interactive front end
type Options struct {
	Host       HostSummary
	NewService ServiceFactory
	// StartupError is shown on the home screen, e.g. a rules load failure
	StartupError string
}

// ── Main App Model ──

type AppModel struct {
	page     page
	width    int
	height   int
	home     HomeModel
	scanning ScanningModel
	results  ResultsModel

	newService   ServiceFactory
	progressChan chan scan.Progress
	cancel       context.CancelFunc
	lastResult   *types.ScanResult
	quitting     bool
}

func NewAppModel(opts Options) AppModel {
	home := NewHomeModel(opts.Host)
	home.errorMsg = opts.StartupError

	return AppModel{
		page:       pageHome,
		home:       home,
		scanning:   NewScanningModel(),
		results:    NewResultsModel(),
		newService: opts.NewService,
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.WindowSize())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listenProgress creates a command that reads from the progress channel.
func listenProgress(ch chan scan.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return progressMsg(p)
	}
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Children see the content area: frame border (2) + padding (2)
		content := tea.WindowSizeMsg{Width: m.width - 4, Height: m.height - 2}
		m.home, _ = m.home.Update(content)
		m.scanning, _ = m.scanning.Update(content)
		m.results, _ = m.results.Update(content)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		// The search box owns the keyboard while focused
		if m.page == pageResults && m.results.Searching() {
			break
		}
		switch msg.String() {
		case "q":
			return m.quit()

		case "enter":
			if m.page == pageHome {
				if m.newService == nil {
					m.home.errorMsg = "Scanner is not configured"
					break
				}
				cmds = append(cmds, m.beginScan()...)
			}

		case "r":
			if m.page == pageResults {
				cmds = append(cmds, m.beginScan()...)
			}

		case "e":
			if m.page == pageResults && m.lastResult != nil {
				cmds = append(cmds, exportJSON(m.lastResult))
			}
		}

	case tickMsg:
		cmds = append(cmds, tickCmd())

	case progressMsg:
		if !scan.Progress(msg).Done {
			cmds = append(cmds, listenProgress(m.progressChan))
		}

	case scanDoneMsg:
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.lastResult = msg.result
		m.results = NewResultsModel()
		m.results.result = msg.result
		m.results.errMsg = msg.err
		if msg.result != nil {
			m.results.duration = time.Duration(msg.result.ScanDurationMs) * time.Millisecond
		}
		m.results.width = m.width - 4
		m.results.height = m.height - 2
		m.results.initViewport()
		m.page = pageResults
	}

	var cmd tea.Cmd
	m, cmd = m.updateActive(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// updateActive hands msg to the page being shown
func (m AppModel) updateActive(msg tea.Msg) (AppModel, tea.Cmd) {
	var cmd tea.Cmd
	switch m.page {
	case pageHome:
		m.home, cmd = m.home.Update(msg)
	case pageScanning:
		m.scanning, cmd = m.scanning.Update(msg)
	case pageResults:
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m AppModel) quit() (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	m.quitting = true
	return m, tea.Quit
}

// beginScan switches to the scanning page with a fresh service and progress channel
func (m *AppModel) beginScan() []tea.Cmd {
	m.progressChan = make(chan scan.Progress, 16)
	svc := m.newService(m.progressChan)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.page = pageScanning
	m.scanning = NewScanningModel()
	m.scanning.width = m.width - 4
	m.scanning.height = m.height - 2

	return []tea.Cmd{startScan(ctx, svc), listenProgress(m.progressChan), m.scanning.Init()}
}

func (m AppModel) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	var content string
	switch m.page {
	case pageHome:
		content = m.home.View()
	case pageScanning:
		content = m.scanning.View()
	case pageResults:
		content = m.results.View()
	}
	return renderFrame(content, m.width, m.height)
}

// renderFrame crops content to the terminal and draws a rounded border around it. Every
// returned row has the same visible width so the alt screen never reflows.
func renderFrame(content string, w, h int) string {
	if w < 40 {
		w = 80
	}
	if h < 10 {
		h = 20
	}
	inner := w - 4 // border and one column of padding per side

	border := lipgloss.NewStyle().Foreground(ColorBorder)
	side := border.Render("│")
	crop := lipgloss.NewStyle().MaxWidth(inner)

	src := strings.Split(content, "\n")
	rows := make([]string, 0, h)
	rows = append(rows, border.Render("╭"+strings.Repeat("─", w-2)+"╮"))
	for i := 0; i < h-2; i++ {
		line := ""
		if i < len(src) {
			line = crop.Render(src[i])
		}
		if pad := inner - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		rows = append(rows, side+" "+line+" "+side)
	}
	rows = append(rows, border.Render("╰"+strings.Repeat("─", w-2)+"╯"))
	return strings.Join(rows, "\n")
}

// startScan runs the pass and reports a scanDoneMsg when it returns.
func startScan(ctx context.Context, svc *scan.Service) tea.Cmd {
	return func() tea.Msg {
		result, err := svc.Execute(ctx)
		if err != nil {
			// an artifact failure still carries an empty result
			return scanDoneMsg{result: result, err: err.Error()}
		}
		return scanDoneMsg{result: result}
	}
}

// exportJSON writes the result to the Desktop when present, else the working directory.
func exportJSON(result *types.ScanResult) tea.Cmd {
	return func() tea.Msg {
		filename := fmt.Sprintf("ferret_bam_%s.json", time.Now().Format("2006-01-02_150405"))

		savePath := filename
		if homeDir, err := os.UserHomeDir(); err == nil {
			desktopDir := filepath.Join(homeDir, "Desktop")
			if _, statErr := os.Stat(desktopDir); statErr == nil {
				savePath = filepath.Join(desktopDir, filename)
			}
		}

		w, err := output.NewWriter(output.FormatJSON, savePath, false)
		if err != nil {
			return exportDoneMsg(fmt.Sprintf("Error: %v", err))
		}
		if err := w.WriteResult(result); err != nil {
			w.Close()
			return exportDoneMsg(fmt.Sprintf("Error: %v", err))
		}
		if err := w.Close(); err != nil {
			return exportDoneMsg(fmt.Sprintf("Error: %v", err))
		}
		return exportDoneMsg(savePath)
	}
}

// Run starts the Bubble Tea program. Cancelling ctx stops it.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(NewAppModel(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// ── Title Banner ──

func TitleBanner() string {
	banner := `
 ███████╗███████╗██████╗ ██████╗ ███████╗████████╗   ██████╗  █████╗ ███╗   ███╗
 ██╔════╝██╔════╝██╔══██╗██╔══██╗██╔════╝╚══██╔══╝   ██╔══██╗██╔══██╗████╗ ████║
 █████╗  █████╗  ██████╔╝██████╔╝█████╗     ██║█████╗██████╔╝███████║██╔████╔██║
 ██╔══╝  ██╔══╝  ██╔══██╗██╔══██╗██╔══╝     ██║╚════╝██╔══██╗██╔══██║██║╚██╔╝██║
 ██║     ███████╗██║  ██║██║  ██║███████╗   ██║      ██████╔╝██║  ██║██║ ╚═╝ ██║
 ╚═╝     ╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝   ╚═╝      ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚═╝`
	return lipgloss.NewStyle().Foreground(ColorAccent).Render(banner)
}
