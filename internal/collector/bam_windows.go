//go:build windows

package collector

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/windows/registry"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// RegistryArtifactSource enumerates BAM/DAM user settings under HKLM
type RegistryArtifactSource struct {
	paths []string
}

// NewRegistryArtifactSource creates a source over the given HKLM-relative paths
func NewRegistryArtifactSource(paths []string) *RegistryArtifactSource {
	if len(paths) == 0 {
		paths = DefaultBAMPaths
	}
	return &RegistryArtifactSource{paths: paths}
}

// Entries reads every binary value of every SID subkey. Name and data buffers are sized by the
// registry package from a key-info query, so long device paths are never truncated.
func (s *RegistryArtifactSource) Entries() ([]types.RawEntry, error) {
	logger.Section("BAM Collection")
	startTime := time.Now()

	var entries []types.RawEntry
	opened := 0
	var lastErr error

	for _, bamPath := range s.paths {
		pathEntries, err := readBAMRoot(bamPath)
		if err != nil {
			logger.Debug("BAM root %s skipped: %v", bamPath, err)
			lastErr = err
			continue
		}
		opened++
		entries = append(entries, pathEntries...)
	}

	logger.Timing("RegistryArtifactSource.Entries", startTime)

	if opened == 0 {
		return nil, fmt.Errorf("%w: %v", ErrArtifactUnavailable, lastErr)
	}

	logger.Info("BAM: %d raw values collected from %d root(s)", len(entries), opened)
	return entries, nil
}

func readBAMRoot(bamPath string) ([]types.RawEntry, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, bamPath, registry.READ)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", bamPath, err)
	}
	defer key.Close()

	// Each subkey is a user SID
	sids, err := key.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", bamPath, err)
	}

	var entries []types.RawEntry
	for _, sid := range sids {
		userEntries, err := readSIDKey(key, sid)
		if err != nil {
			logger.Warn("BAM subkey %s\\%s: %v", bamPath, sid, err)
			continue
		}
		entries = append(entries, userEntries...)
	}
	return entries, nil
}

func readSIDKey(root registry.Key, sid string) ([]types.RawEntry, error) {
	userKey, err := registry.OpenKey(root, sid, registry.READ)
	if err != nil {
		return nil, err
	}
	defer userKey.Close()

	valueNames, err := userKey.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]types.RawEntry, 0, len(valueNames))
	for _, valueName := range valueNames {
		data, _, err := userKey.GetBinaryValue(valueName)
		if err != nil {
			// Version and SequenceNumber are DWORDs
			if !errors.Is(err, registry.ErrUnexpectedType) {
				logger.Debug("BAM value %q unreadable: %v", valueName, err)
			}
			continue
		}
		entries = append(entries, types.RawEntry{
			SID:       sid,
			ValueName: valueName,
			Data:      data,
		})
	}
	return entries, nil
}
