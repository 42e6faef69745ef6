package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/ferret-bam/internal/config"
	"github.com/digggggmori-pixel/ferret-bam/internal/output"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvPath, filepath.Join(t.TempDir(), "absent.yaml"))

	var out bytes.Buffer
	root := NewRootCmd(Options{Version: "1.2.3"})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ferret-bam 1.2.3")
}

func TestRulesCommandUsesEmbeddedBundle(t *testing.T) {
	out, err := runRoot(t, "rules")
	require.NoError(t, err)
	assert.Contains(t, out, "embedded")
	assert.Contains(t, out, "cheat_menu_strings")
	assert.Contains(t, out, "slinkware")
}

func TestRulesCommandMissingExplicitPath(t *testing.T) {
	_, err := runRoot(t, "rules", "--rules", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestExplicitConfigMissing(t *testing.T) {
	_, err := runRoot(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.Error(t, err)
}

func newBoundCommand() (*cobra.Command, *scanFlags) {
	cmd := &cobra.Command{Use: "scan"}
	f := &scanFlags{}
	bindScanFlags(cmd, f)
	return cmd, f
}

func TestScanOptionsFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Format = config.FormatCSV
	cfg.Output.Path = "history.csv"
	cfg.Metrics.Textfile = "bam.prom"
	a := &app{cfg: cfg}

	cmd, f := newBoundCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--format", "json", "--not-signed", "--search", "loader", "--no-aux"}))

	opts := a.scanOptions(cmd, f)
	assert.Equal(t, config.FormatJSON, opts.Format)
	assert.Equal(t, "history.csv", opts.Output)
	assert.Equal(t, "bam.prom", opts.MetricsFile)
	assert.False(t, opts.Auxiliary)
	assert.True(t, opts.Filter.NotSignedOnly)
	assert.Equal(t, "loader", opts.Filter.Search)
}

func TestScanOptionsDefaultsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Format = config.FormatSQLite
	cfg.Output.Path = "out.db"
	a := &app{cfg: cfg}

	cmd, f := newBoundCommand()
	require.NoError(t, cmd.ParseFlags(nil))
	opts := a.scanOptions(cmd, f)
	assert.Equal(t, config.FormatSQLite, opts.Format)
	assert.Equal(t, "out.db", opts.Output)
	assert.True(t, opts.Auxiliary)
	assert.True(t, opts.Filter.IsZero())
}

func TestRunScanRejectsCompressedCSV(t *testing.T) {
	a := &app{cfg: config.Default()}
	var out bytes.Buffer
	err := a.runScan(context.Background(), &out, &out, scanOptions{Format: config.FormatCSV, Compress: true})
	assert.Error(t, err)
}

func TestFilteredResultKeepsSummary(t *testing.T) {
	result := &types.ScanResult{Records: []types.ExecutionRecord{
		{Path: `C:\a.exe`, Trust: types.TrustSigned},
		{Path: `C:\b.exe`, Trust: types.TrustNotSigned},
	}}
	result.Summarize(0)

	assert.Same(t, result, filteredResult(result, output.Filter{}))

	got := filteredResult(result, output.Filter{NotSignedOnly: true})
	require.Len(t, got.Records, 1)
	assert.Equal(t, `C:\b.exe`, got.Records[0].Path)
	assert.Equal(t, 2, got.Summary.TotalEntries)
	assert.Len(t, result.Records, 2)
}

func TestWriteResultJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	result := &types.ScanResult{ScanID: "abc", Records: []types.ExecutionRecord{{Path: `C:\a.exe`, Trust: types.TrustDeleted}}}

	require.NoError(t, writeResult(scanOptions{Format: config.FormatJSON, Output: path}, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded types.ScanResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc", decoded.ScanID)
	require.Len(t, decoded.Records, 1)
	assert.Equal(t, types.TrustDeleted, decoded.Records[0].Trust)
}

func TestArtifactPaths(t *testing.T) {
	cfg := config.Default()
	assert.NotEmpty(t, artifactPaths(cfg))

	cfg.Artifact.Paths = []string{`SYSTEM\custom`}
	cfg.Artifact.IncludeLegacy = true
	paths := artifactPaths(cfg)
	assert.Equal(t, `SYSTEM\custom`, paths[0])
	assert.Greater(t, len(paths), 1)
}

func TestRunScanRejectsTableToFile(t *testing.T) {
	a := &app{cfg: config.Default()}
	var out bytes.Buffer
	err := a.runScan(context.Background(), &out, &out, scanOptions{Format: config.FormatTable, Output: "x.txt"})
	assert.Error(t, err)
	assert.Empty(t, out.String())
}
