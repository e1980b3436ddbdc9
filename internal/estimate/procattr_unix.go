//go:build !windows

package estimate

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the engine in its own process group so a timeout
// kills any helpers it forked as well.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
