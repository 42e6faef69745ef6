package collector

import (
	"errors"
	"fmt"
	"time"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// ErrNoSessions is returned by a source that enumerated successfully but found nothing usable
var ErrNoSessions = errors.New("no logon sessions")

// SessionSource enumerates the host's logon sessions
type SessionSource interface {
	Sessions() ([]types.LogonSession, error)
}

// FormatExecutionTime renders t in the canonical 19-character layout, in loc
func FormatExecutionTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(types.ExecutionTimeLayout)
}

// ParseExecutionTime parses the canonical layout in loc and returns the instant in UTC
func ParseExecutionTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if len(s) != len(types.ExecutionTimeLayout) {
		return time.Time{}, fmt.Errorf("execution time %q: want %d characters", s, len(types.ExecutionTimeLayout))
	}
	t, err := time.ParseInLocation(types.ExecutionTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("execution time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// SessionCorrelator decides whether an execution falls inside the current interactive session window
type SessionCorrelator struct {
	source SessionSource
	loc    *time.Location
	now    func() time.Time
}

// NewSessionCorrelator creates a correlator over source. A nil loc means time.Local.
func NewSessionCorrelator(source SessionSource, loc *time.Location) *SessionCorrelator {
	if loc == nil {
		loc = time.Local
	}
	return &SessionCorrelator{
		source: source,
		loc:    loc,
		now:    time.Now,
	}
}

// Location returns the zone execution times are rendered and parsed in
func (c *SessionCorrelator) Location() *time.Location {
	return c.loc
}

// IsInCurrentSession parses execTime in the correlator's zone and checks it with
// IsInCurrentSessionAt. Malformed input yields false.
func (c *SessionCorrelator) IsInCurrentSession(execTime string) bool {
	executed, err := ParseExecutionTime(execTime, c.loc)
	if err != nil {
		logger.Debug("Session correlation: %v", err)
		return false
	}
	return c.IsInCurrentSessionAt(executed)
}

// IsInCurrentSessionAt reports whether executed lies within [earliest interactive logon, now],
// compared in UTC at whole-second resolution. A failed query or the absence of interactive
// sessions yields false.
func (c *SessionCorrelator) IsInCurrentSessionAt(executed time.Time) bool {
	if executed.IsZero() {
		return false
	}
	start, err := c.WindowStart()
	if err != nil {
		logger.Debug("Session correlation: %v", err)
		return false
	}

	executed = executed.UTC().Truncate(time.Second)
	now := c.now().UTC()
	return !executed.Before(start) && !executed.After(now)
}

// WindowStart queries the sessions and returns the earliest interactive logon, truncated to the second
func (c *SessionCorrelator) WindowStart() (time.Time, error) {
	if c.source == nil {
		return time.Time{}, ErrNoSessions
	}
	sessions, err := c.source.Sessions()
	if err != nil {
		return time.Time{}, fmt.Errorf("query sessions: %w", err)
	}

	var earliest time.Time
	for _, s := range sessions {
		if !s.Interactive && !types.IsInteractiveLogonType(s.LogonType) {
			continue
		}
		if s.StartTime.IsZero() {
			continue
		}
		if earliest.IsZero() || s.StartTime.Before(earliest) {
			earliest = s.StartTime
		}
	}
	if earliest.IsZero() {
		return time.Time{}, ErrNoSessions
	}
	// Execution times only carry whole seconds
	return earliest.UTC().Truncate(time.Second), nil
}

// FallbackSessionSource tries each source in order and returns the first non-empty answer
type FallbackSessionSource struct {
	sources []SessionSource
}

// NewFallbackSessionSource chains sources, nil entries are ignored
func NewFallbackSessionSource(sources ...SessionSource) *FallbackSessionSource {
	f := &FallbackSessionSource{}
	for _, s := range sources {
		if s != nil {
			f.sources = append(f.sources, s)
		}
	}
	return f
}

// Sessions implements SessionSource
func (f *FallbackSessionSource) Sessions() ([]types.LogonSession, error) {
	var errs []error
	for _, src := range f.sources {
		sessions, err := src.Sessions()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(sessions) == 0 {
			continue
		}
		return sessions, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoSessions
}

// StaticSessionSource serves a fixed session list
type StaticSessionSource []types.LogonSession

// Sessions implements SessionSource
func (s StaticSessionSource) Sessions() ([]types.LogonSession, error) {
	return s, nil
}
