//go:build !windows

package toolchain

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command as the leader of a new process group, so
// anything it spawns can be killed with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
