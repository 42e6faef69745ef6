package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

func sampleResult() *types.ScanResult {
	r := &types.ScanResult{
		ScanTime:           time.Unix(1790000000, 0),
		ScanDurationMs:     1500,
		AuxiliaryAvailable: true,
		Records: []types.ExecutionRecord{
			{Trust: types.TrustSigned},
			{Trust: types.TrustNotSigned, PatternMatches: []string{"cheat_menu_strings"}, InCurrentSession: true},
			{Trust: types.TrustCheatSignature, PatternMatches: []string{"cheat_menu_strings", "packed_upx"},
				AuxiliaryFindings: []types.AuxiliaryFinding{{FindingType: types.FindingCopy}}},
		},
	}
	r.Summarize(2)
	return r
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.Observe(sampleResult())

	path := filepath.Join(t.TempDir(), "ferret_bam.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)

	for _, line := range []string{
		`ferret_bam_records{trust="Signed"} 1`,
		`ferret_bam_records{trust="Not signed"} 1`,
		`ferret_bam_records{trust="Deleted"} 0`,
		`ferret_bam_pattern_matches{rule="cheat_menu_strings"} 2`,
		`ferret_bam_pattern_matches{rule="packed_upx"} 1`,
		`ferret_bam_replace_findings{type="Copy"} 1`,
		`ferret_bam_skipped_entries 2`,
		`ferret_bam_flagged_records 2`,
		`ferret_bam_current_session_records 1`,
		`ferret_bam_replace_scanner_available 1`,
		`ferret_bam_scan_duration_seconds 1.5`,
		`ferret_bam_last_scan_timestamp_seconds 1.79e+09`,
	} {
		assert.Contains(t, text, line)
	}
}

func TestObserveResetsRules(t *testing.T) {
	m := NewMetrics()
	m.Observe(sampleResult())
	m.Observe(&types.ScanResult{})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		assert.NotEqual(t, "ferret_bam_pattern_matches", mf.GetName(), "stale rule series are dropped")
	}
}
