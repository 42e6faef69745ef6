package collector

import (
	"strings"
	"time"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
)

// UnresolvedVolume replaces the device prefix when no mounted drive maps to it
const UnresolvedVolume = "?:"

const (
	devicePrefix     = `\Device\`
	globalRootPrefix = `\\?\GLOBALROOT`
)

// DriveDevice pairs a drive letter ("C:") with its kernel device name
type DriveDevice struct {
	Letter string
	Device string
}

// DriveMapper lists the currently mounted drive letters and their device names
type DriveMapper interface {
	Drives() ([]DriveDevice, error)
}

// VolumeResolver rewrites \Device\HarddiskVolumeN paths to drive-letter form
type VolumeResolver struct {
	mapper DriveMapper
}

// NewVolumeResolver creates a resolver backed by mapper
func NewVolumeResolver(mapper DriveMapper) *VolumeResolver {
	return &VolumeResolver{mapper: mapper}
}

// IsDevicePath reports whether p is a kernel device path, optionally GLOBALROOT-wrapped
func IsDevicePath(p string) bool {
	return hasPrefixFold(stripGlobalRoot(p), devicePrefix)
}

// Resolve returns p with its device prefix replaced by a drive letter. Paths that are not device
// paths are returned unchanged. When no mounted volume matches, the prefix becomes "?:".
func (r *VolumeResolver) Resolve(p string) string {
	if !IsDevicePath(p) {
		return p
	}

	devPath := stripGlobalRoot(p)

	// Drives are enumerated per call: volumes come and go while a pass runs
	if r.mapper != nil {
		drives, err := r.mapper.Drives()
		if err != nil {
			logger.Debug("Drive enumeration failed: %v", err)
		}
		for _, d := range drives {
			if rest, ok := cutDevice(devPath, d.Device); ok {
				return d.Letter + rest
			}
		}
	}

	return UnresolvedVolume + deviceRemainder(devPath)
}

// cutDevice strips device from the front of p when it covers a whole path component
func cutDevice(p, device string) (string, bool) {
	device = strings.TrimRight(device, `\`)
	if device == "" || !hasPrefixFold(p, device) {
		return "", false
	}
	rest := p[len(device):]
	if rest != "" && rest[0] != '\\' {
		// \Device\HarddiskVolume1 must not claim \Device\HarddiskVolume10
		return "", false
	}
	return rest, true
}

// deviceRemainder returns everything after \Device\<name>
func deviceRemainder(devPath string) string {
	tail := devPath[len(devicePrefix):]
	if i := strings.IndexByte(tail, '\\'); i >= 0 {
		return tail[i:]
	}
	return ""
}

func stripGlobalRoot(p string) string {
	if hasPrefixFold(p, globalRootPrefix) {
		return p[len(globalRootPrefix):]
	}
	return p
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// StaticDriveMapper serves a fixed drive table
type StaticDriveMapper []DriveDevice

// Drives implements DriveMapper
func (m StaticDriveMapper) Drives() ([]DriveDevice, error) {
	return m, nil
}

// LogDrives writes the current drive table to the debug log
func LogDrives(mapper DriveMapper) {
	start := time.Now()
	drives, err := mapper.Drives()
	if err != nil {
		logger.Warn("Drive enumeration failed: %v", err)
		return
	}
	for _, d := range drives {
		logger.Debug("Volume: %s -> %s", d.Letter, d.Device)
	}
	logger.Timing("LogDrives", start)
}
