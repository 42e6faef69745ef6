//go:build !windows

package collector

// SystemDriveMapper has no drive table off Windows
type SystemDriveMapper struct{}

// NewSystemDriveMapper creates an empty mapper
func NewSystemDriveMapper() *SystemDriveMapper {
	return &SystemDriveMapper{}
}

// Drives always fails off Windows, so every device path resolves to the "?:" sentinel
func (m *SystemDriveMapper) Drives() ([]DriveDevice, error) {
	return nil, ErrUnsupported
}
