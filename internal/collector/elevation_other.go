//go:build !windows

package collector

import "os"

// IsRunningAsAdmin reports whether the process runs as root
func IsRunningAsAdmin() bool {
	return os.Geteuid() == 0
}
