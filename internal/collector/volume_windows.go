//go:build windows

package collector

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// SystemDriveMapper queries the live drive table with GetLogicalDriveStrings and QueryDosDevice
type SystemDriveMapper struct{}

// NewSystemDriveMapper creates a mapper over the live drive table
func NewSystemDriveMapper() *SystemDriveMapper {
	return &SystemDriveMapper{}
}

// Drives implements DriveMapper. A letter whose device can no longer be queried (volume removed
// since enumeration) is skipped.
func (m *SystemDriveMapper) Drives() ([]DriveDevice, error) {
	roots, err := logicalDriveStrings()
	if err != nil {
		return nil, err
	}

	drives := make([]DriveDevice, 0, len(roots))
	for _, root := range roots {
		if len(root) < 2 {
			continue
		}
		letter := root[:2]
		device, err := queryDosDevice(letter)
		if err != nil {
			continue
		}
		drives = append(drives, DriveDevice{Letter: letter, Device: device})
	}
	return drives, nil
}

// logicalDriveStrings returns "C:\", "D:\", ... sized from a preliminary length query
func logicalDriveStrings() ([]string, error) {
	n, err := windows.GetLogicalDriveStrings(0, nil)
	if err != nil {
		return nil, fmt.Errorf("GetLogicalDriveStrings: %w", err)
	}
	for {
		buf := make([]uint16, n+1)
		got, err := windows.GetLogicalDriveStrings(uint32(len(buf)), &buf[0])
		if err != nil {
			return nil, fmt.Errorf("GetLogicalDriveStrings: %w", err)
		}
		if got > uint32(len(buf)) {
			// A drive was mounted between the two calls
			n = got
			continue
		}
		return splitMultiSZ(buf[:got]), nil
	}
}

// queryDosDevice returns the first device target of a DOS device name, growing the buffer on demand
func queryDosDevice(name string) (string, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return "", err
	}
	for size := 512; size <= 1<<16; size *= 2 {
		buf := make([]uint16, size)
		n, err := windows.QueryDosDevice(namePtr, &buf[0], uint32(len(buf)))
		if err != nil {
			if errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
				continue
			}
			return "", fmt.Errorf("QueryDosDevice %s: %w", name, err)
		}
		targets := splitMultiSZ(buf[:n])
		if len(targets) == 0 {
			return "", fmt.Errorf("QueryDosDevice %s: no target", name)
		}
		return targets[0], nil
	}
	return "", fmt.Errorf("QueryDosDevice %s: target too long", name)
}

func splitMultiSZ(buf []uint16) []string {
	var out []string
	start := 0
	for i, c := range buf {
		if c != 0 {
			continue
		}
		if i > start {
			out = append(out, windows.UTF16ToString(buf[start:i]))
		}
		start = i + 1
	}
	if start < len(buf) {
		out = append(out, windows.UTF16ToString(buf[start:]))
	}
	return out
}
