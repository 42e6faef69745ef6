package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HostSummary is what the home screen shows before a pass
type HostSummary struct {
	Hostname     string
	OS           string
	IsAdmin      bool
	RulesVersion string
	RuleCount    int
	Auxiliary    bool
}

// HomeModel represents the home/start screen.
type HomeModel struct {
	width, height int
	info          HostSummary
	errorMsg      string
}

func NewHomeModel(info HostSummary) HomeModel {
	return HomeModel{info: info}
}

func (m HomeModel) Update(msg tea.Msg) (HomeModel, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m HomeModel) View() string {
	w := m.width
	if w < 40 {
		w = 60
	}

	var b strings.Builder

	b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, TitleBanner()))
	b.WriteString("\n")
	subtitle := SubtitleStyle.Render("BAM execution history  •  signature trust  •  content rules")
	b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, subtitle))
	b.WriteString("\n\n")

	yesNo := func(v bool) string {
		if v {
			return lipgloss.NewStyle().Foreground(ColorSuccess).Render("Yes")
		}
		return lipgloss.NewStyle().Foreground(ColorError).Render("No")
	}

	rules := lipgloss.NewStyle().Foreground(ColorError).Render("Not loaded")
	if m.info.RulesVersion != "" {
		rules = lipgloss.NewStyle().Foreground(ColorSuccess).
			Render(fmt.Sprintf("%s (%d rules)", m.info.RulesVersion, m.info.RuleCount))
	}

	rows := []string{
		LabelStyle.Render("Host:") + " " + ValueStyle.Render(m.info.Hostname),
		LabelStyle.Render("OS:") + " " + ValueStyle.Render(m.info.OS),
		LabelStyle.Render("Admin:") + " " + yesNo(m.info.IsAdmin),
		LabelStyle.Render("Rules:") + " " + rules,
		LabelStyle.Render("Replaces:") + " " + yesNo(m.info.Auxiliary),
	}
	infoBox := InfoBoxStyle.Width(46).Render(strings.Join(rows, "\n"))
	b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, infoBox))
	b.WriteString("\n\n")

	if !m.info.IsAdmin {
		warn := AlertStyle.Render("Not elevated: BAM keys and logon sessions may be unreadable")
		b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, warn))
		b.WriteString("\n\n")
	}
	if m.errorMsg != "" {
		b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, AlertStyle.Render(m.errorMsg)))
		b.WriteString("\n\n")
	}

	btn := ButtonStyle.Render("[ ▶  START SCAN ]")
	b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, btn))
	b.WriteString("\n\n")

	hint := HintStyle.Render("Press ENTER to start  •  Q to quit")
	b.WriteString(lipgloss.PlaceHorizontal(w, lipgloss.Center, hint))

	return b.String()
}
