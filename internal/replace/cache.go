// Package replace runs the external replace scanner once per pass and serves its findings by
// file name.
package replace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// LogName is the log file the scanner is asked to write
const LogName = "replaces.txt"

// DefaultTimeout bounds a scanner run when Config.Timeout is left unset
const DefaultTimeout = 2 * time.Minute

// Stage identifies the Init step that failed
type Stage string

// Init stages
const (
	StageWorkDir Stage = "workdir"
	StagePayload Stage = "payload"
	StageLaunch  Stage = "launch"
	StageParse   Stage = "parse"
)

// StageError is returned by Init and names the failing stage
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("replace scanner %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config configures a Cache
type Config struct {
	Payload Payload
	// Runner defaults to ExecRunner
	Runner Runner
	// Timeout bounds the scanner run; a negative value waits indefinitely
	Timeout time.Duration
	// TempRoot is the parent of the working directory, os.TempDir() when empty
	TempRoot string
}

// Cache holds the findings of one scanner run
type Cache struct {
	cfg Config

	mu      sync.RWMutex
	index   Index
	workDir string
}

// NewCache creates an empty cache; call Init to populate it
func NewCache(cfg Config) *Cache {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Cache{cfg: cfg}
}

// Init creates a private working directory, writes the scanner into it, runs it and loads its log.
// A previous working directory is removed first. On failure the cache stays empty and the
// returned error is a *StageError.
func (c *Cache) Init(ctx context.Context) error {
	logger.SubSection("Replace Scanner")
	startTime := time.Now()

	if err := c.Destroy(); err != nil {
		logger.Warn("Replace: previous working directory not removed: %v", err)
	}

	root := c.cfg.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "ferret-bam-replace-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &StageError{Stage: StageWorkDir, Err: err}
	}

	c.mu.Lock()
	c.workDir = dir
	c.mu.Unlock()

	if c.cfg.Payload == nil {
		return &StageError{Stage: StagePayload, Err: ErrNoPayload}
	}
	exe, err := c.cfg.Payload.Materialize(dir)
	if err != nil {
		return &StageError{Stage: StagePayload, Err: err}
	}

	runCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	logPath := filepath.Join(dir, LogName)
	logger.APICall("replaceparser", exe, logPath)
	if err := c.cfg.Runner.Run(runCtx, exe, []string{logPath}, dir); err != nil {
		logger.APIResult("replaceparser", nil, err)
		return &StageError{Stage: StageLaunch, Err: err}
	}
	logger.APIResult("replaceparser", "exited", nil)

	index, err := loadIndex(logPath)
	if err != nil {
		return &StageError{Stage: StageParse, Err: err}
	}

	c.mu.Lock()
	c.index = index
	c.mu.Unlock()

	logger.Info("Replace: %d file names with findings", len(index))
	logger.Timing("Cache.Init", startTime)
	return nil
}

func loadIndex(logPath string) (Index, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Scan returns a copy of the findings recorded for the base name of nameOrPath.
// Files sharing a name in different directories share findings.
func (c *Cache) Scan(nameOrPath string) []types.AuxiliaryFinding {
	key := Key(nameOrPath)

	c.mu.RLock()
	defer c.mu.RUnlock()

	found := c.index[key]
	if len(found) == 0 {
		return nil
	}
	out := make([]types.AuxiliaryFinding, len(found))
	copy(out, found)
	return out
}

// Available reports whether the last Init loaded a log
func (c *Cache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index != nil
}

// WorkDir returns the current working directory, empty when none exists
func (c *Cache) WorkDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workDir
}

// Destroy clears the index and removes the working directory
func (c *Cache) Destroy() error {
	c.mu.Lock()
	c.index = nil
	dir := c.workDir
	c.workDir = ""
	c.mu.Unlock()

	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}
