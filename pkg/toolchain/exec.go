package toolchain

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// run runs argv (no shell) in dir & returns it's combined output.
//
// If ctx ends first the whole process group is killed and ctx's error is returned.
func run(ctx context.Context, dir string, waitDelay time.Duration, argv ...string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8", "PYTHONUTF8=1")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if ctx.Err() != nil {
		return out.String(), ctx.Err()
	}
	return out.String(), err
}

// tail returns the last n non empty lines of s
func tail(s string, n int) string {
	lines := []string{}
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
