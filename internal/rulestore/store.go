package rulestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/internal/patterns"
)

const rulesFileName = "rules.json"

// RuleStore manages the lifecycle of rule bundles.
// It handles loading from disk and atomic hot-swapping at runtime.
type RuleStore struct {
	mu       sync.RWMutex
	bundle   *RuleBundle
	path     string // explicit rules file, takes precedence over the search
	rulesDir string // directory where rules.json lives (exe directory)
	opts     patterns.Options
}

// NewRuleStore creates a new RuleStore.
// An empty path searches the executable directory, then the working directory.
func NewRuleStore(path string, opts patterns.Options) *RuleStore {
	return &RuleStore{
		path:     path,
		rulesDir: execDir(),
		opts:     opts,
	}
}

// candidates lists the rules files tried in order
func (rs *RuleStore) candidates() []string {
	if rs.path != "" {
		return []string{rs.path}
	}
	out := []string{filepath.Join(rs.rulesDir, rulesFileName)}
	if wd, err := os.Getwd(); err == nil && wd != rs.rulesDir {
		out = append(out, filepath.Join(wd, rulesFileName))
	}
	return out
}

// Load reads the first rules file found. Without one, the embedded bundle is used.
// An explicit path that is missing or invalid is an error.
func (rs *RuleStore) Load() error {
	bundle, err := rs.loadBundle()
	if err != nil {
		return err
	}

	rs.mu.Lock()
	rs.bundle = bundle
	rs.mu.Unlock()

	logger.Info("Rules loaded: version=%s, patterns=%d rules, source=%s",
		bundle.Version, bundle.Engine.TotalRules(), bundle.Source)
	return nil
}

func (rs *RuleStore) loadBundle() (*RuleBundle, error) {
	candidates := rs.candidates()
	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			continue
		}
		bundle, err := LoadBundleFromFile(c, rs.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		return bundle, nil
	}

	if rs.path != "" {
		return nil, fmt.Errorf("rules file %s not found", rs.path)
	}

	logger.Debug("rules.json not found. Searched: [%s], using embedded rules", strings.Join(candidates, ", "))
	bundle, err := LoadDefaultBundle(rs.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded rules: %w", err)
	}
	return bundle, nil
}

// Reload re-reads the rules and atomically swaps the bundle.
// Safe to call while a pass is running; the pass keeps its reference.
func (rs *RuleStore) Reload() error {
	bundle, err := rs.loadBundle()
	if err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	rs.mu.Lock()
	rs.bundle = bundle
	rs.mu.Unlock()

	logger.Info("Rules reloaded: version=%s, patterns=%d rules", bundle.Version, bundle.Engine.TotalRules())
	return nil
}

// GetBundle returns the currently loaded rule bundle.
// Returns nil if no rules have been loaded.
func (rs *RuleStore) GetBundle() *RuleBundle {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.bundle
}

// IsLoaded returns true if rules have been successfully loaded.
func (rs *RuleStore) IsLoaded() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.bundle != nil
}

// Version returns the current rule bundle version, or "" if not loaded.
func (rs *RuleStore) Version() string {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.bundle == nil {
		return ""
	}
	return rs.bundle.Version
}

// Match runs the current bundle's engine against path. Without a bundle nothing matches.
func (rs *RuleStore) Match(path string) ([]string, error) {
	bundle := rs.GetBundle()
	if bundle == nil {
		return nil, nil
	}
	return bundle.Engine.Match(path)
}

// execDir returns the directory containing the current executable.
// Falls back to "." if the executable path cannot be determined.
func execDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
