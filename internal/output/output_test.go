package output

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

func sampleRecords() []types.ExecutionRecord {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return []types.ExecutionRecord{
		{
			Path: `C:\Windows\System32\notepad.exe`, ExecutionTime: "2026-10-01 12:00:00", ExecutedAt: at,
			SID: "S-1-5-18", Trust: types.TrustSigned, Signer: "CN=Microsoft Windows",
			PatternMatches: []string{}, AuxiliaryFindings: []types.AuxiliaryFinding{},
		},
		{
			Path: `D:\Games\loader.exe`, RawPath: `\Device\HarddiskVolume3\Games\loader.exe`,
			ExecutionTime: "2026-10-01 13:00:00", ExecutedAt: at.Add(time.Hour),
			SID: "S-1-5-21-1", User: "alice", Trust: types.TrustCheatSignature, Signer: "CN=Slinkware",
			InCurrentSession: true,
			PatternMatches:   []string{"cheat_menu_strings"},
			AuxiliaryFindings: []types.AuxiliaryFinding{
				{FileName: "loader.exe", FindingType: types.FindingCopy, Details: "line one\nline two"},
			},
		},
		{
			Path: `D:\Tools\unsigned.exe`, ExecutionTime: "2026-09-30 08:15:00", ExecutedAt: at.Add(-28 * time.Hour),
			SID: "S-1-5-21-1", Trust: types.TrustNotSigned,
			PatternMatches: []string{}, AuxiliaryFindings: []types.AuxiliaryFinding{},
		},
		{
			Path: `D:\Tools\replaced.exe`, ExecutionTime: "2026-10-01 14:00:00", ExecutedAt: at.Add(2 * time.Hour),
			SID: "S-1-5-21-1", Trust: types.TrustNotSigned, InCurrentSession: true,
			PatternMatches:    []string{},
			AuxiliaryFindings: []types.AuxiliaryFinding{{FileName: "replaced.exe", FindingType: types.FindingDelete}},
		},
	}
}

func sampleResult() *types.ScanResult {
	r := &types.ScanResult{
		Version:            "test",
		ScanID:             "2f1c6c55-8d0e-4a55-9a4e-0e1f3b9b7a10",
		ScanTime:           time.Date(2026, 10, 1, 15, 0, 0, 0, time.UTC),
		ScanDurationMs:     2300,
		Host:               types.HostInfo{Hostname: "WS-01", OS: "windows", Arch: "amd64"},
		RulesVersion:       "2026.10.1",
		AuxiliaryAvailable: true,
		Records:            sampleRecords(),
	}
	r.Summarize(1)
	return r
}

func paths(records []types.ExecutionRecord) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].Path
	}
	return out
}

func TestFilter(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero keeps all", Filter{}, paths(records)},
		{"not signed", Filter{NotSignedOnly: true}, []string{`D:\Games\loader.exe`, `D:\Tools\unsigned.exe`, `D:\Tools\replaced.exe`}},
		{"flagged", Filter{FlaggedOnly: true}, []string{`D:\Games\loader.exe`, `D:\Tools\replaced.exe`}},
		{"current session", Filter{CurrentSessionOnly: true}, []string{`D:\Games\loader.exe`, `D:\Tools\replaced.exe`}},
		{"search path", Filter{Search: "TOOLS"}, []string{`D:\Tools\unsigned.exe`, `D:\Tools\replaced.exe`}},
		{"search time", Filter{Search: "2026-09-30"}, []string{`D:\Tools\unsigned.exe`}},
		{"search signature", Filter{Search: "cheat signature"}, []string{`D:\Games\loader.exe`}},
		{"search rule", Filter{Search: "menu_str"}, []string{`D:\Games\loader.exe`}},
		{"search signer", Filter{Search: "microsoft windows"}, []string{`C:\Windows\System32\notepad.exe`}},
		{"combined", Filter{NotSignedOnly: true, CurrentSessionOnly: true, Search: "replaced"}, []string{`D:\Tools\replaced.exe`}},
		{"no hit", Filter{Search: "nothing-like-this"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paths(tt.filter.Apply(records)))
		})
	}

	assert.True(t, Filter{Search: "  "}.IsZero())
	assert.False(t, Filter{FlaggedOnly: true}.IsZero())
}

func TestJSONWriterCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.json.zst")
	w, err := NewWriter(FormatJSON, path, true)
	require.NoError(t, err)
	require.NoError(t, w.WriteResult(sampleResult()))
	require.NoError(t, w.Close())

	compressed, err := os.ReadFile(path)
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)

	var got types.ScanResult
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "WS-01", got.Host.Hostname)
	require.Len(t, got.Records, 4)
	assert.Equal(t, types.TrustCheatSignature, got.Records[1].Trust)
	assert.Equal(t, 2, got.Summary.Flagged)
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.csv")
	w, err := NewWriter(FormatCSV, path, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteResult(sampleResult()))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, csvHeader, rows[0])
	loader := rows[2]
	assert.Equal(t, `D:\Games\loader.exe`, loader[1])
	assert.Equal(t, "Cheat signature", loader[5])
	assert.Equal(t, "true", loader[7])
	assert.Equal(t, "cheat_menu_strings", loader[8])
	assert.Equal(t, "Copy: line one | line two", loader[9])
}

func TestSQLiteWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.db")
	w, err := NewWriter(FormatSQLite, path, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteResult(sampleResult()))
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM executions WHERE trust = ?`, "Not signed").Scan(&count))
	assert.Equal(t, 2, count)

	var matches, host string
	require.NoError(t, db.QueryRow(`SELECT e.pattern_matches, s.hostname FROM executions e
		JOIN scans s ON s.scan_id = e.scan_id WHERE e.path = ?`, `D:\Games\loader.exe`).Scan(&matches, &host))
	assert.JSONEq(t, `["cheat_menu_strings"]`, matches)
	assert.Equal(t, "WS-01", host)
}

func TestNewWriterErrors(t *testing.T) {
	_, err := NewWriter(FormatCSV, "", true)
	assert.Error(t, err)
	_, err = NewWriter(FormatSQLite, "", false)
	assert.Error(t, err)
	_, err = NewWriter("xml", "", false)
	assert.Error(t, err)
}

func TestHandlerReport(t *testing.T) {
	var buf bytes.Buffer
	h := New(&buf, Options{Verbose: true})
	result := sampleResult()

	h.PrintSummary(result)
	h.PrintRecords(result.Records)
	out := buf.String()

	assert.Contains(t, out, "Scan complete (2.3s)")
	assert.Contains(t, out, `D:\Games\loader.exe`)
	assert.Contains(t, out, "Cheat signature")
	assert.Contains(t, out, "cheat_menu_strings")
	assert.Contains(t, out, "Copy (line one; line two)")
	assert.Contains(t, out, "2026-10-01 13:00:00 *")

	buf.Reset()
	h.PrintRecords(nil)
	assert.Contains(t, buf.String(), "No executions match.")

	buf.Reset()
	New(&buf, Options{Quiet: true}).PrintStep(1, 4, "hidden")
	assert.Empty(t, buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
