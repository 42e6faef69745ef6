package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// Options for output handler
type Options struct {
	Quiet   bool
	Verbose bool // include replace finding details
}

// Handler manages CLI output
type Handler struct {
	out  io.Writer
	opts Options
}

// New creates a new output handler writing to out
func New(out io.Writer, opts Options) *Handler {
	return &Handler{out: out, opts: opts}
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5eead4")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b6b7b"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2a2a3d"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5eead4")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
)

// TrustStyle returns the badge color of a verdict
func TrustStyle(status types.TrustStatus) lipgloss.Style {
	base := lipgloss.NewStyle()
	switch status {
	case types.TrustSigned:
		return base.Foreground(lipgloss.Color("#22c55e"))
	case types.TrustNotSigned:
		return base.Foreground(lipgloss.Color("#eab308"))
	case types.TrustCheatSignature:
		return base.Foreground(lipgloss.Color("#ef4444")).Bold(true)
	case types.TrustFakeSignature:
		return base.Foreground(lipgloss.Color("#f59e0b")).Bold(true)
	case types.TrustDeleted:
		return base.Foreground(lipgloss.Color("#6b6b7b"))
	}
	return base
}

// PrintHeader prints the scan header
func (h *Handler) PrintHeader(version, host string) {
	if h.opts.Quiet {
		return
	}
	fmt.Fprintln(h.out)
	fmt.Fprintln(h.out, titleStyle.Render("ferret-bam "+version)+dimStyle.Render("  BAM execution history"))
	fmt.Fprintln(h.out, dimStyle.Render(fmt.Sprintf("Host: %s  Time: %s", host, time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))))
	fmt.Fprintln(h.out)
}

// PrintStep prints a scan step
func (h *Handler) PrintStep(current, total int, message string) {
	if h.opts.Quiet {
		return
	}
	fmt.Fprintf(h.out, "[%d/%d] %s\n", current, total, message)
}

// PrintDetail prints a detail line
func (h *Handler) PrintDetail(format string, args ...interface{}) {
	if h.opts.Quiet {
		return
	}
	fmt.Fprintf(h.out, "      └─ "+format+"\n", args...)
}

// PrintError prints an error message
func (h *Handler) PrintError(format string, args ...interface{}) {
	fmt.Fprintln(h.out, errorStyle.Render("ERROR: ")+fmt.Sprintf(format, args...))
}

// PrintSummary prints the per-verdict counts of a pass
func (h *Handler) PrintSummary(result *types.ScanResult) {
	s := result.Summary
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Scan complete (%.1fs)", float64(result.ScanDurationMs)/1000)))
	b.WriteString("\n")
	for _, status := range types.AllTrustStatuses {
		fmt.Fprintf(&b, "  %-16s %4d\n", TrustStyle(status).Render(string(status)), s.ByTrust[status])
	}
	fmt.Fprintf(&b, "  %-16s %4d\n", "Flagged", s.Flagged)
	fmt.Fprintf(&b, "  %-16s %4d\n", "Current session", s.CurrentSession)
	fmt.Fprintf(&b, "  %-16s %4d\n", "Skipped", s.SkippedEntries)
	if !result.AuxiliaryAvailable {
		b.WriteString(dimStyle.Render("  replace scanner unavailable, no replace findings"))
		b.WriteString("\n")
	}
	if result.RulesVersion != "" {
		b.WriteString(dimStyle.Render("  rules " + result.RulesVersion))
		b.WriteString("\n")
	}
	fmt.Fprintln(h.out, b.String())
}

// PrintRecords renders records as a table
func (h *Handler) PrintRecords(records []types.ExecutionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(h.out, dimStyle.Render("No executions match."))
		return
	}

	headers := []string{"Last Execution", "Path", "Signature", "Rules", "Replaces"}
	rows := make([][]string, len(records))
	for i := range records {
		rec := &records[i]
		session := ""
		if rec.InCurrentSession {
			session = " *"
		}
		rows[i] = []string{
			rec.ExecutionTime + session,
			Truncate(rec.Path, 70),
			string(rec.Trust),
			strings.Join(rec.PatternMatches, ", "),
			h.findingsCell(rec.AuxiliaryFindings),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 {
				if idx := dataIndex(row); idx >= 0 && idx < len(records) {
					return TrustStyle(records[idx].Trust).Padding(0, 1)
				}
			}
			return cellStyle
		})

	fmt.Fprintln(h.out, t.Render())
	fmt.Fprintln(h.out, dimStyle.Render("* executed during the current logon session"))
}

// dataIndex maps a StyleFunc row number to a record index; data rows start below the header
func dataIndex(row int) int {
	return row - 1
}

func (h *Handler) findingsCell(findings []types.AuxiliaryFinding) string {
	if len(findings) == 0 {
		return ""
	}
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = f.FindingType
		if h.opts.Verbose && f.Details != "" {
			parts[i] += " (" + Truncate(strings.ReplaceAll(f.Details, "\n", "; "), 60) + ")"
		}
	}
	return strings.Join(parts, ", ")
}

// Truncate truncates a string to maxLen runes, adding "..." if needed.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
