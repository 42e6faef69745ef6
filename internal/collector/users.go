package collector

import "strings"

// UserResolver maps a BAM subkey SID to a display user name
type UserResolver interface {
	Username(sid string) string
}

// profileUserName extracts the last path component of a profile directory
// (e.g., C:\Users\john → john)
func profileUserName(profilePath string) string {
	profilePath = strings.TrimRight(profilePath, `\/`)
	if i := strings.LastIndexAny(profilePath, `\/`); i >= 0 {
		return profilePath[i+1:]
	}
	return profilePath
}
