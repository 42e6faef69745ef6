// Package scan provides the scan service that turns raw BAM entries into enriched execution records.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/digggggmori-pixel/ferret-bam/internal/collector"
	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/internal/trust"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// ErrBusy is returned when Execute is called while a pass is already running
var ErrBusy = errors.New("scan already in progress")

// ErrMissingDependency is returned by Execute when Deps lacks the artifact source or classifier
var ErrMissingDependency = errors.New("scan dependency not configured")

// PathResolver rewrites device paths to drive-letter paths
type PathResolver interface {
	Resolve(path string) string
}

// SessionChecker reports whether an execution instant falls in the current logon window
type SessionChecker interface {
	IsInCurrentSessionAt(executed time.Time) bool
}

// Classifier assigns a trust verdict to an executable
type Classifier interface {
	Classify(path string) trust.Result
}

// Matcher returns the IDs of content rules matching an executable
type Matcher interface {
	Match(path string) ([]string, error)
}

// AuxiliaryScanner is the per-pass replace scanner index
type AuxiliaryScanner interface {
	Init(ctx context.Context) error
	Scan(nameOrPath string) []types.AuxiliaryFinding
	Destroy() error
}

// Deps are the collaborators of a pass. Artifacts and Trust are required; the rest may be nil.
type Deps struct {
	Artifacts collector.ArtifactSource
	Volumes   PathResolver
	Sessions  SessionChecker
	Trust     Classifier
	Patterns  Matcher
	Auxiliary AuxiliaryScanner
	Users     collector.UserResolver
}

// Service manages the scan lifecycle
type Service struct {
	deps       Deps
	config     Config
	progressCh chan Progress
	busy       atomic.Bool
}

// Progress represents scan progress sent via channel
type Progress struct {
	Step     int    `json:"step"`
	Total    int    `json:"total"`
	StepName string `json:"stepName"`
	Percent  int    `json:"percent"`
	Detail   string `json:"detail"`
	Done     bool   `json:"done"`
}

// NewService creates a new scan service (no progress channel).
func NewService(deps Deps, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{deps: deps, config: cfg}
}

// NewServiceWithChannel creates a new scan service with a progress channel for TUI.
func NewServiceWithChannel(deps Deps, cfg Config, ch chan Progress) *Service {
	s := NewService(deps, cfg)
	s.progressCh = ch
	return s
}

// Busy reports whether a pass is running
func (s *Service) Busy() bool {
	return s.busy.Load()
}

const totalSteps = 4

// emitProgress sends a progress update via channel (if set).
func (s *Service) emitProgress(ctx context.Context, p Progress) {
	if s.progressCh == nil {
		return
	}
	p.Total = totalSteps
	select {
	case s.progressCh <- p:
	case <-ctx.Done():
	}
}

// Execute runs one pass:
// Step 1: read the artifact
// Step 2: prepare the replace scanner
// Step 3: decode, resolve, classify, correlate and scan every entry
// Step 4: sort and summarize
func (s *Service) Execute(ctx context.Context) (*types.ScanResult, error) {
	switch {
	case s.deps.Artifacts == nil:
		return nil, fmt.Errorf("artifact source: %w", ErrMissingDependency)
	case s.deps.Trust == nil:
		return nil, fmt.Errorf("trust classifier: %w", ErrMissingDependency)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	startTime := time.Now()
	logger.Section("Scan")

	result := &types.ScanResult{
		Version:  s.config.Version,
		ScanID:   uuid.New().String(),
		ScanTime: startTime,
		Host:     hostInfo(),
		Records:  make([]types.ExecutionRecord, 0),
	}
	if v, ok := s.deps.Patterns.(interface{ Version() string }); ok {
		result.RulesVersion = v.Version()
	}

	// ── Step 1: Read artifact ──
	s.emitProgress(ctx, Progress{Step: 1, StepName: "Reading BAM entries...", Percent: 0})
	entries, err := s.deps.Artifacts.Entries()
	if err != nil {
		logger.Error("Artifact read failed: %v", err)
		result.Summarize(0)
		result.ScanDurationMs = time.Since(startTime).Milliseconds()
		s.emitDone(ctx, result, startTime)
		return result, fmt.Errorf("read artifact: %w", err)
	}
	s.emitProgress(ctx, Progress{Step: 1, StepName: "BAM entries read", Percent: 5,
		Detail: fmt.Sprintf("%d entries", len(entries))})

	// ── Step 2: Replace scanner ──
	aux := s.prepareAuxiliary(ctx)
	if aux != nil {
		defer func() {
			if err := aux.Destroy(); err != nil {
				logger.Warn("Replace scanner cleanup failed: %v", err)
			}
		}()
	}
	result.AuxiliaryAvailable = aux != nil

	// ── Step 3: Enrich entries ──
	logger.SubSection("Entries")
	skipped := 0
	for i, raw := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, ok := s.processEntry(raw, aux)
		if !ok {
			skipped++
		} else {
			result.Records = append(result.Records, rec)
		}

		s.emitProgress(ctx, Progress{
			Step:     3,
			StepName: "Analyzing executions...",
			Percent:  10 + 85*(i+1)/len(entries),
			Detail:   fmt.Sprintf("%d/%d", i+1, len(entries)),
		})
	}

	// ── Step 4: Aggregate ──
	s.emitProgress(ctx, Progress{Step: 4, StepName: "Aggregating results...", Percent: 96})
	SortByExecutionTime(result.Records)
	result.Summarize(skipped)
	result.ScanDurationMs = time.Since(startTime).Milliseconds()

	logger.Info("Scan complete: %d records, %d skipped, %d flagged",
		len(result.Records), skipped, result.Summary.Flagged)
	logger.Timing("Scan.Execute", startTime)
	s.emitDone(ctx, result, startTime)
	return result, nil
}

func (s *Service) emitDone(ctx context.Context, result *types.ScanResult, startTime time.Time) {
	s.emitProgress(ctx, Progress{
		Step:     totalSteps,
		StepName: "Scan complete",
		Percent:  100,
		Detail: fmt.Sprintf("%d executions, %d flagged, %.1fs elapsed",
			len(result.Records), result.Summary.Flagged, time.Since(startTime).Seconds()),
		Done: true,
	})
}

// prepareAuxiliary initializes the replace scanner, returning nil when it is disabled or failed
func (s *Service) prepareAuxiliary(ctx context.Context) AuxiliaryScanner {
	if !s.config.Auxiliary || s.deps.Auxiliary == nil {
		logger.Info("Replace scanner disabled")
		return nil
	}

	s.emitProgress(ctx, Progress{Step: 2, StepName: "Running replace scanner...", Percent: 5})
	startTime := time.Now()
	if err := s.deps.Auxiliary.Init(ctx); err != nil {
		logger.Warn("Replace scanner unavailable: %v", err)
		if derr := s.deps.Auxiliary.Destroy(); derr != nil {
			logger.Warn("Replace scanner cleanup failed: %v", derr)
		}
		s.emitProgress(ctx, Progress{Step: 2, StepName: "Replace scanner unavailable", Percent: 10, Detail: err.Error()})
		return nil
	}
	logger.Timing("Replace scanner", startTime)
	s.emitProgress(ctx, Progress{Step: 2, StepName: "Replace scanner complete", Percent: 10})
	return s.deps.Auxiliary
}

// processEntry builds one record. ok is false when the entry is skipped.
func (s *Service) processEntry(raw types.RawEntry, aux AuxiliaryScanner) (rec types.ExecutionRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Entry %q aborted: %v", raw.ValueName, r)
			rec, ok = types.ExecutionRecord{}, false
		}
	}()

	decoded, err := collector.DecodeEntry(raw)
	if err != nil {
		logger.Debug("Skipping entry: %v", err)
		return types.ExecutionRecord{}, false
	}

	path := decoded.Path
	if collector.IsDevicePath(path) && s.deps.Volumes != nil {
		path = s.deps.Volumes.Resolve(path)
	}

	rec = types.ExecutionRecord{
		Path:              path,
		ExecutionTime:     collector.FormatExecutionTime(decoded.ExecutedAt, s.config.Location),
		ExecutedAt:        decoded.ExecutedAt,
		SID:               decoded.SID,
		User:              decoded.SID,
		PatternMatches:    []string{},
		AuxiliaryFindings: []types.AuxiliaryFinding{},
	}
	if path != decoded.Path {
		rec.RawPath = decoded.Path
	}
	if s.deps.Users != nil {
		rec.User = s.deps.Users.Username(decoded.SID)
	}

	verdict := s.deps.Trust.Classify(path)
	rec.Trust = verdict.Status
	rec.Signer = verdict.Signer

	if s.deps.Sessions != nil {
		rec.InCurrentSession = s.deps.Sessions.IsInCurrentSessionAt(decoded.ExecutedAt)
	}

	if !rec.Trust.SuppressesScanning() {
		if s.deps.Patterns != nil {
			ids, err := s.deps.Patterns.Match(path)
			if err != nil {
				logger.Warn("Pattern scan failed for %s: %v", path, err)
			} else if len(ids) > 0 {
				rec.PatternMatches = ids
			}
		}
		if aux != nil {
			if findings := aux.Scan(path); len(findings) > 0 {
				rec.AuxiliaryFindings = findings
			}
		}
	}

	logger.RecordInfo(rec.Path, string(rec.Trust), rec.InCurrentSession,
		len(rec.PatternMatches), len(rec.AuxiliaryFindings))
	return rec, true
}

// SortByExecutionTime orders records newest first; ties keep artifact order
func SortByExecutionTime(records []types.ExecutionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ExecutedAt.After(records[j].ExecutedAt)
	})
}

func hostInfo() types.HostInfo {
	name, err := os.Hostname()
	if err != nil {
		name = "unknown"
	}
	return types.HostInfo{
		Hostname: name,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
	}
}
