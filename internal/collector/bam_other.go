//go:build !windows

package collector

import (
	"fmt"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// RegistryArtifactSource is only backed by the registry on Windows
type RegistryArtifactSource struct {
	paths []string
}

// NewRegistryArtifactSource creates a source over the given HKLM-relative paths
func NewRegistryArtifactSource(paths []string) *RegistryArtifactSource {
	return &RegistryArtifactSource{paths: paths}
}

// Entries always fails off Windows
func (s *RegistryArtifactSource) Entries() ([]types.RawEntry, error) {
	return nil, fmt.Errorf("%w: %w", ErrArtifactUnavailable, ErrUnsupported)
}
