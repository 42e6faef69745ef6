//go:build windows

package collector

import (
	"sync"

	"golang.org/x/sys/windows/registry"
)

// ProfileUserResolver resolves SIDs through the ProfileList registry key
type ProfileUserResolver struct {
	mu    sync.Mutex
	names map[string]string
}

// NewProfileUserResolver creates a resolver with an empty per-pass cache
func NewProfileUserResolver() *ProfileUserResolver {
	return &ProfileUserResolver{names: make(map[string]string)}
}

// Username returns the profile directory name for sid, or sid itself when unknown
func (r *ProfileUserResolver) Username(sid string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.names[sid]; ok {
		return name
	}
	name := sidToUsername(sid)
	r.names[sid] = name
	return name
}

func sidToUsername(sid string) string {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE,
		`SOFTWARE\Microsoft\Windows NT\CurrentVersion\ProfileList\`+sid,
		registry.READ)
	if err != nil {
		return sid
	}
	defer key.Close()

	profilePath, _, err := key.GetStringValue("ProfileImagePath")
	if err != nil || profilePath == "" {
		return sid
	}
	return profileUserName(profilePath)
}
