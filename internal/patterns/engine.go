package patterns

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
)

// Engine defaults
const (
	DefaultMaxFileSize = 64 << 20
	DefaultCacheSize   = 4096
)

// Options configures an Engine
type Options struct {
	// MaxFileSize caps how many bytes of a file are read
	MaxFileSize int64
	// CacheSize is the number of memoized file verdicts
	CacheSize int
}

// memoKey identifies one version of a file on disk under one rule set
type memoKey struct {
	path  string
	size  int64
	mtime int64
	gen   uint64
}

// Engine evaluates content rules against files, memoizing verdicts per file version
type Engine struct {
	mu          sync.RWMutex
	rules       []*compiledRule
	skipped     int
	gen         uint64
	maxFileSize int64
	memo        *lru.Cache[memoKey, []string]
}

// NewEngine compiles rules. Invalid rules are skipped and logged; see Skipped.
func NewEngine(rules []Rule, opts Options) (*Engine, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	memo, err := lru.New[memoKey, []string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("pattern cache: %w", err)
	}

	e := &Engine{
		maxFileSize: opts.MaxFileSize,
		memo:        memo,
	}
	e.Load(rules)
	return e, nil
}

// Load replaces the rule set and drops memoized verdicts
func (e *Engine) Load(rules []Rule) {
	compiled := make([]*compiledRule, 0, len(rules))
	skipped := 0
	for _, r := range rules {
		cr, err := compile(r)
		if err != nil {
			logger.Warn("Patterns: skipping rule: %v", err)
			skipped++
			continue
		}
		compiled = append(compiled, cr)
	}

	// verdicts computed against the previous rules carry the old gen and never hit again
	e.mu.Lock()
	e.rules = compiled
	e.skipped = skipped
	e.gen++
	e.memo.Purge()
	e.mu.Unlock()

	logger.Debug("Patterns: %d rules compiled, %d skipped", len(compiled), skipped)
}

// TotalRules returns the number of compiled rules
func (e *Engine) TotalRules() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Skipped returns the number of rules rejected by the last Load
func (e *Engine) Skipped() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.skipped
}

// Rules returns the source of every compiled rule
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.rule
	}
	return out
}

// Match returns the IDs of the rules matching the file at path, in rule order
func (e *Engine) Match(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	e.mu.RLock()
	rules, gen := e.rules, e.gen
	e.mu.RUnlock()

	key := memoKey{path: path, size: info.Size(), mtime: info.ModTime().UnixNano(), gen: gen}
	if ids, ok := e.memo.Get(key); ok {
		return append([]string(nil), ids...), nil
	}

	startTime := time.Now()
	data, err := e.readPrefix(path)
	if err != nil {
		return nil, err
	}

	var lowered []byte
	ids := []string{}
	for _, cr := range rules {
		if cr.rule.MaxFileSize > 0 && info.Size() > cr.rule.MaxFileSize {
			continue
		}
		if lowered == nil && cr.needsLowered() {
			lowered = asciiLower(data)
		}
		if cr.matches(data, lowered) {
			logger.PatternMatch(cr.rule.ID, path)
			ids = append(ids, cr.rule.ID)
		}
	}

	e.memo.Add(key, ids)
	logger.Timing("Engine.Match", startTime)
	return append([]string(nil), ids...), nil
}

func (e *Engine) readPrefix(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, e.maxFileSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
