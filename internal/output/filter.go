package output

import (
	"strings"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// Filter selects the records shown or exported
type Filter struct {
	NotSignedOnly      bool   // hide Signed records
	FlaggedOnly        bool   // keep records with a rule match or replace finding
	CurrentSessionOnly bool   // keep records executed during the current logon window
	Search             string // case-insensitive substring of time, path, signature or rules
}

// IsZero reports whether the filter keeps every record
func (f Filter) IsZero() bool {
	return !f.NotSignedOnly && !f.FlaggedOnly && !f.CurrentSessionOnly && strings.TrimSpace(f.Search) == ""
}

// Match reports whether rec passes the filter
func (f Filter) Match(rec *types.ExecutionRecord) bool {
	if f.NotSignedOnly && rec.Trust == types.TrustSigned {
		return false
	}
	if f.FlaggedOnly && !rec.IsFlagged() {
		return false
	}
	if f.CurrentSessionOnly && !rec.InCurrentSession {
		return false
	}

	query := strings.ToLower(strings.TrimSpace(f.Search))
	if query == "" {
		return true
	}
	for _, field := range []string{
		rec.ExecutionTime,
		rec.Path,
		string(rec.Trust),
		rec.Signer,
		strings.Join(rec.PatternMatches, ", "),
	} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Apply returns the records passing the filter, in their original order
func (f Filter) Apply(records []types.ExecutionRecord) []types.ExecutionRecord {
	out := make([]types.ExecutionRecord, 0, len(records))
	for i := range records {
		if f.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}
