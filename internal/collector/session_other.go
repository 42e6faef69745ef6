//go:build !windows

package collector

import "github.com/digggggmori-pixel/ferret-bam/pkg/types"

// LSASessionSource is unavailable off Windows
type LSASessionSource struct{}

// NewLSASessionSource creates the primary session source
func NewLSASessionSource() *LSASessionSource {
	return &LSASessionSource{}
}

// Sessions always fails off Windows
func (s *LSASessionSource) Sessions() ([]types.LogonSession, error) {
	return nil, ErrUnsupported
}

// WMISessionSource is unavailable off Windows
type WMISessionSource struct{}

// NewWMISessionSource creates the fallback session source
func NewWMISessionSource() *WMISessionSource {
	return &WMISessionSource{}
}

// Sessions always fails off Windows
func (s *WMISessionSource) Sessions() ([]types.LogonSession, error) {
	return nil, ErrUnsupported
}

// DefaultSessionSource is LSA with a WMI fallback
func DefaultSessionSource() SessionSource {
	return NewFallbackSessionSource(NewLSASessionSource(), NewWMISessionSource())
}
