//go:build !windows

package collector

// ProfileUserResolver returns SIDs unchanged off Windows
type ProfileUserResolver struct{}

// NewProfileUserResolver creates a pass-through resolver
func NewProfileUserResolver() *ProfileUserResolver {
	return &ProfileUserResolver{}
}

// Username returns sid unchanged
func (r *ProfileUserResolver) Username(sid string) string {
	return sid
}
