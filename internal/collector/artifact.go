// Package collector reads the BAM execution artifact and the host state needed to enrich it:
// mounted volumes, logon sessions and user profiles.
package collector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

var (
	// ErrArtifactUnavailable is returned when no BAM root key could be opened or enumerated
	ErrArtifactUnavailable = errors.New("bam artifact unavailable")

	// ErrMalformedEntry marks a value that cannot be decoded into a path and timestamp
	ErrMalformedEntry = errors.New("malformed bam entry")

	// ErrUnsupported is returned by host-backed sources on platforms without the artifact
	ErrUnsupported = errors.New("not supported on this platform")
)

// ArtifactSource yields the raw BAM values of every user subkey
type ArtifactSource interface {
	Entries() ([]types.RawEntry, error)
}

// BAM registry paths, relative to HKLM
var (
	DefaultBAMPaths = []string{
		`SYSTEM\CurrentControlSet\Services\bam\State\UserSettings`,
	}

	// Pre-1809 layouts and the Desktop Activity Moderator
	LegacyBAMPaths = []string{
		`SYSTEM\CurrentControlSet\Services\dam\State\UserSettings`,
		`SYSTEM\CurrentControlSet\Services\bam\UserSettings`,
		`SYSTEM\CurrentControlSet\Services\dam\UserSettings`,
	}
)

// DecodedEntry is a raw entry split into its device path and last execution time
type DecodedEntry struct {
	SID        string
	Path       string
	ExecutedAt time.Time
}

// DecodeEntry validates a raw value and extracts the FILETIME stored in its first 8 bytes.
func DecodeEntry(raw types.RawEntry) (DecodedEntry, error) {
	if !strings.Contains(raw.ValueName, `\`) {
		return DecodedEntry{}, fmt.Errorf("%w: value %q is not a path", ErrMalformedEntry, raw.ValueName)
	}
	if len(raw.Data) < 8 {
		return DecodedEntry{}, fmt.Errorf("%w: %d byte payload for %q", ErrMalformedEntry, len(raw.Data), raw.ValueName)
	}

	ft := binary.LittleEndian.Uint64(raw.Data[0:8])
	executedAt := filetimeToTime(ft)
	if executedAt.IsZero() {
		return DecodedEntry{}, fmt.Errorf("%w: filetime %#x out of range for %q", ErrMalformedEntry, ft, raw.ValueName)
	}

	return DecodedEntry{
		SID:        raw.SID,
		Path:       raw.ValueName,
		ExecutedAt: executedAt,
	}, nil
}

// filetimeToTime converts a Windows FILETIME (100-nanosecond intervals since Jan 1, 1601) to UTC time.Time
func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	// Difference between the FILETIME and Unix epochs, in 100-nanosecond intervals
	const filetimeEpochDiff = 116444736000000000
	// Year 2100
	const filetimeMax = 157766880000000000
	if ft < filetimeEpochDiff || ft > filetimeMax {
		return time.Time{}
	}
	nsec := (ft - filetimeEpochDiff) * 100
	return time.Unix(0, int64(nsec)).UTC()
}

// timeToFiletime is the inverse of filetimeToTime
func timeToFiletime(t time.Time) uint64 {
	const filetimeEpochDiff = 116444736000000000
	return uint64(t.UnixNano()/100) + filetimeEpochDiff
}

// EncodeFiletime builds an 8-byte BAM payload prefix for t
func EncodeFiletime(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, timeToFiletime(t))
	return buf
}

// StaticSource serves a fixed set of entries, e.g. from an offline export
type StaticSource struct {
	entries []types.RawEntry
	err     error
}

// NewStaticSource creates a source that always returns entries (or err when non-nil)
func NewStaticSource(entries []types.RawEntry, err error) *StaticSource {
	return &StaticSource{entries: entries, err: err}
}

// Entries implements ArtifactSource
func (s *StaticSource) Entries() ([]types.RawEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]types.RawEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
