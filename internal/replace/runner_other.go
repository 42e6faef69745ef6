//go:build !windows

package replace

import "os/exec"

func hideWindow(cmd *exec.Cmd) {}
