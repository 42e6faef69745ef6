package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	t.Setenv(EnvPath, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.AuxiliaryEnabled())
	assert.Equal(t, 2*time.Minute, cfg.Auxiliary.Timeout)
}

func TestLoadExplicitMissingFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
debug: true
log_dir: C:\ferret\logs
artifact:
  include_legacy: true
trust:
  deny_list: ["Evil Signer"]
  stores: [MY, Root]
auxiliary:
  enabled: false
  payload: C:\tools\replaceparser.exe
  timeout: 30s
rules:
  path: rules.json
  cache_size: 16
output:
  format: JSON
  compress: true
metrics:
  textfile: ferret_bam.prom
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, `C:\ferret\logs`, cfg.LogDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Artifact.IncludeLegacy)
	assert.Equal(t, []string{"Evil Signer"}, cfg.Trust.DenyList)
	assert.Equal(t, []string{"MY", "Root"}, cfg.Trust.Stores)
	assert.False(t, cfg.AuxiliaryEnabled())
	assert.Equal(t, 30*time.Second, cfg.Auxiliary.Timeout)
	assert.Equal(t, int64(64<<20), cfg.Rules.MaxFileSize)
	assert.Equal(t, 16, cfg.Rules.CacheSize)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.True(t, cfg.Output.Compress)
	assert.Equal(t, "ferret_bam.prom", cfg.Metrics.Textfile)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "auxiliary:\n  timeout: -1s\n")
	t.Setenv(EnvPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, -time.Second, cfg.Auxiliary.Timeout, "negative timeout is kept")
	assert.True(t, cfg.AuxiliaryEnabled())
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "debug: [\n"},
		{"unknown format", "output:\n  format: xml\n"},
		{"compress without json", "output:\n  format: csv\n  compress: true\n"},
		{"negative file size", "rules:\n  max_file_size: -1\n"},
		{"bad duration", "auxiliary:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
