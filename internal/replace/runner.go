package replace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner launches the scanner and waits for it to exit
type Runner interface {
	Run(ctx context.Context, exe string, args []string, dir string) error
}

// ExecRunner runs the scanner as a hidden child process
type ExecRunner struct{}

// Run implements Runner. The child is killed when ctx is done.
func (ExecRunner) Run(ctx context.Context, exe string, args []string, dir string) error {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = dir
	hideWindow(cmd)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", exe, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s", exe, exitErr.ExitCode(), tail(out.String(), 512))
		}
		return fmt.Errorf("start %s: %w", exe, err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
