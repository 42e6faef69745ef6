package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// ── Color Palette (muted, professional, 2-accent system) ──

var (
	// Background surfaces
	ColorBG      = lipgloss.Color("#0c0c14")
	ColorSurface = lipgloss.Color("#161624")
	ColorBorder  = lipgloss.Color("#2a2a3d")

	// Text hierarchy
	ColorText      = lipgloss.Color("#c8c8d4")
	ColorTextDim   = lipgloss.Color("#6b6b7b")
	ColorTextMuted = lipgloss.Color("#3e3e50")

	// Single accent color
	ColorAccent    = lipgloss.Color("#5eead4")
	ColorAccentDim = lipgloss.Color("#2d6a5e")

	// Verdicts
	ColorSigned    = lipgloss.Color("#22c55e")
	ColorNotSigned = lipgloss.Color("#eab308")
	ColorCheat     = lipgloss.Color("#ef4444")
	ColorFake      = lipgloss.Color("#f59e0b")
	ColorDeleted   = lipgloss.Color("#6b6b7b")

	// Semantic
	ColorSuccess = lipgloss.Color("#22c55e")
	ColorError   = lipgloss.Color("#ef4444")
)

// ── Reusable Styles ──

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	InfoBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2)

	ButtonStyle = lipgloss.NewStyle().
			Foreground(ColorBG).
			Background(ColorAccent).
			Bold(true).
			Padding(0, 3)

	RowStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	RowSelectedStyle = lipgloss.NewStyle().
				Foreground(ColorAccent)

	HintStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	StepDone    = lipgloss.NewStyle().Foreground(ColorTextDim)
	StepActive  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	StepPending = lipgloss.NewStyle().Foreground(ColorTextMuted)

	AlertStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	// Filter toggle badge
	BadgeStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Background(ColorAccentDim).
			Padding(0, 1)

	BadgeOffStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Background(ColorSurface).
			Padding(0, 1)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(ColorBorder)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim).
			Width(10).
			Align(lipgloss.Right)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorText)
)

// TrustStyle returns the badge style for a verdict.
func TrustStyle(status types.TrustStatus) lipgloss.Style {
	badge := lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Padding(0, 1)
	switch status {
	case types.TrustSigned:
		return badge.Background(ColorSigned)
	case types.TrustNotSigned:
		return badge.Background(ColorNotSigned)
	case types.TrustCheatSignature:
		return badge.Background(ColorCheat).Bold(true)
	case types.TrustFakeSignature:
		return badge.Background(ColorFake).Bold(true)
	case types.TrustDeleted:
		return badge.Background(ColorDeleted)
	default:
		return lipgloss.NewStyle().Foreground(ColorTextDim)
	}
}

// shortTrust is the fixed-width list label of a verdict
func shortTrust(status types.TrustStatus) string {
	switch status {
	case types.TrustSigned:
		return "SIGNED"
	case types.TrustNotSigned:
		return "UNSIGNED"
	case types.TrustCheatSignature:
		return "CHEAT"
	case types.TrustFakeSignature:
		return "FAKE"
	case types.TrustDeleted:
		return "DELETED"
	}
	return "?"
}
