package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/digggggmori-pixel/ferret-bam/internal/output"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// ResultsModel represents the scan results screen.
type ResultsModel struct {
	width, height int

	result   *types.ScanResult
	duration time.Duration

	// selection & scrolling
	selected   int
	listTop    int // first visible item index
	listHeight int // visible item count

	filter    output.Filter
	search    textinput.Model
	searching bool

	exportPath string
	errMsg     string
}

// Fixed layout constants
const (
	resultHeaderLines = 6 // title + sep + summary + filters + help + sep
	resultDetailLines = 8 // separator + detail panel
)

func NewResultsModel() ResultsModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "time, path, signature or rule"
	ti.CharLimit = 256
	return ResultsModel{search: ti}
}

func (m ResultsModel) Update(msg tea.Msg) (ResultsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()

	case exportDoneMsg:
		m.exportPath = string(msg)

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		visible := m.visibleRecords()
		switch msg.String() {
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.ensureVisible()
			}
		case "down", "j":
			if m.selected < len(visible)-1 {
				m.selected++
				m.ensureVisible()
			}
		case "pgdown":
			m.selected = min(m.selected+m.listHeight, max(len(visible)-1, 0))
			m.ensureVisible()
		case "pgup":
			m.selected = max(m.selected-m.listHeight, 0)
			m.ensureVisible()
		case "n":
			m.filter.NotSignedOnly = !m.filter.NotSignedOnly
			m.resetSelection()
		case "f":
			m.filter.FlaggedOnly = !m.filter.FlaggedOnly
			m.resetSelection()
		case "c":
			m.filter.CurrentSessionOnly = !m.filter.CurrentSessionOnly
			m.resetSelection()
		case "/":
			m.searching = true
			return m, m.search.Focus()
		case "esc":
			m.filter = output.Filter{}
			m.search.SetValue("")
			m.resetSelection()
		}
	}

	return m, nil
}

// updateSearch routes keys to the search box; the filter follows every keystroke
func (m ResultsModel) updateSearch(msg tea.KeyMsg) (ResultsModel, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.filter.Search = m.search.Value()
	m.resetSelection()
	return m, cmd
}

func (m *ResultsModel) initViewport() {
	m.recalcLayout()
}

func (m *ResultsModel) recalcLayout() {
	m.listHeight = m.height - resultHeaderLines - resultDetailLines
	if m.listHeight < 1 {
		m.listHeight = 1
	}
}

func (m *ResultsModel) resetSelection() {
	m.selected = 0
	m.listTop = 0
}

func (m *ResultsModel) ensureVisible() {
	if m.selected < m.listTop {
		m.listTop = m.selected
	} else if m.selected >= m.listTop+m.listHeight {
		m.listTop = m.selected - m.listHeight + 1
	}
}

func (m ResultsModel) visibleRecords() []types.ExecutionRecord {
	if m.result == nil {
		return nil
	}
	return m.filter.Apply(m.result.Records)
}

// Searching reports whether the search box has focus
func (m ResultsModel) Searching() bool {
	return m.searching
}

// View builds the results screen as a fixed-height line array.
func (m ResultsModel) View() string {
	w := m.width
	if w < 40 {
		w = 80
	}
	if m.result == nil {
		return m.renderErrorView(w)
	}

	visible := m.visibleRecords()
	sep := SeparatorStyle.Render(strings.Repeat("─", w))

	lines := []string{
		TitleStyle.Render("Execution history") + "  " +
			SubtitleStyle.Render(fmt.Sprintf("%d of %d shown  •  %.1fs", len(visible), len(m.result.Records), m.duration.Seconds())),
		sep,
		m.renderSummary(),
		m.renderFilters(),
		m.renderHelp(),
		sep,
	}

	lines = append(lines, m.renderList(visible, w)...)
	lines = append(lines, sep)
	lines = append(lines, m.renderDetail(visible, w)...)

	return strings.Join(lines, "\n")
}

func (m ResultsModel) renderSummary() string {
	s := m.result.Summary
	parts := make([]string, 0, len(types.AllTrustStatuses)+2)
	for _, status := range types.AllTrustStatuses {
		parts = append(parts, TrustStyle(status).Render(fmt.Sprintf("%s %d", shortTrust(status), s.ByTrust[status])))
	}
	parts = append(parts, SubtitleStyle.Render(fmt.Sprintf("flagged %d  session %d", s.Flagged, s.CurrentSession)))
	if !m.result.AuxiliaryAvailable {
		parts = append(parts, AlertStyle.Render("replaces unavailable"))
	}
	return strings.Join(parts, " ")
}

func (m ResultsModel) renderFilters() string {
	toggle := func(key, label string, on bool) string {
		if on {
			return BadgeStyle.Render(key + " " + label)
		}
		return BadgeOffStyle.Render(key + " " + label)
	}
	line := strings.Join([]string{
		toggle("n", "not signed", m.filter.NotSignedOnly),
		toggle("f", "flagged", m.filter.FlaggedOnly),
		toggle("c", "current session", m.filter.CurrentSessionOnly),
	}, " ")
	if m.searching || m.search.Value() != "" {
		line += "  " + m.search.View()
	}
	return line
}

func (m ResultsModel) renderHelp() string {
	help := "↑↓ select  •  / search  •  esc clear  •  e export  •  r rescan  •  q quit"
	if m.errMsg != "" {
		return AlertStyle.Render(m.errMsg) + "  " + HintStyle.Render(help)
	}
	if m.exportPath != "" {
		help += "  •  " + lipgloss.NewStyle().Foreground(ColorSuccess).Render("saved "+m.exportPath)
	}
	return HintStyle.Render(help)
}

func (m ResultsModel) renderList(records []types.ExecutionRecord, w int) []string {
	lines := make([]string, 0, m.listHeight)
	if len(records) == 0 {
		lines = append(lines, HintStyle.Render("  No executions match the current filters."))
	}

	end := min(m.listTop+m.listHeight, len(records))
	for i := m.listTop; i < end; i++ {
		rec := &records[i]
		marker := "  "
		style := RowStyle
		if i == m.selected {
			marker = "▸ "
			style = RowSelectedStyle
		}
		flags := " "
		if rec.IsFlagged() {
			flags = AlertStyle.Render("!")
		}
		session := " "
		if rec.InCurrentSession {
			session = "*"
		}
		badge := TrustStyle(rec.Trust).Width(10).Render(shortTrust(rec.Trust))
		prefix := marker + rec.ExecutionTime + session + " " + badge + " " + flags + " "
		pathWidth := max(w-lipgloss.Width(prefix), 10)
		lines = append(lines, style.Render(prefix+output.Truncate(rec.Path, pathWidth)))
	}

	for len(lines) < m.listHeight {
		lines = append(lines, "")
	}
	return lines
}

func (m ResultsModel) renderDetail(records []types.ExecutionRecord, w int) []string {
	lines := make([]string, 0, resultDetailLines-1)
	if m.selected < len(records) {
		rec := &records[m.selected]
		field := func(label, value string) string {
			return LabelStyle.Render(label) + " " + ValueStyle.Render(output.Truncate(value, max(w-12, 10)))
		}
		lines = append(lines,
			field("Path:", rec.Path),
			field("User:", rec.User+"  "+rec.SID),
			field("Signer:", rec.Signer),
			field("Rules:", strings.Join(rec.PatternMatches, ", ")),
		)
		for _, f := range rec.AuxiliaryFindings {
			lines = append(lines, field(f.FindingType+":", strings.ReplaceAll(f.Details, "\n", "; ")))
		}
	}
	for len(lines) > resultDetailLines-1 {
		lines = lines[:resultDetailLines-1]
	}
	return lines
}

func (m ResultsModel) renderErrorView(w int) string {
	msg := m.errMsg
	if msg == "" {
		msg = "No result"
	}
	return lipgloss.PlaceHorizontal(w, lipgloss.Center,
		AlertStyle.Render("Scan failed")+"\n\n"+ValueStyle.Render(msg)+"\n\n"+HintStyle.Render("r rescan  •  q quit"))
}
