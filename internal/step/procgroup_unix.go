//go:build unix

package step

import (
	"os/exec"
	"syscall"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// group was killed.
const waitDelay = 5 * time.Second

// killProcessGroup runs the command in its own process group so that
// cancellation reaches the shell and all of its children.
func killProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = grace + waitDelay
	if grace <= 0 {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return
	}
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			return syscall.Kill(pgid, syscall.SIGKILL)
		}
		go func() {
			time.Sleep(grace)
			// ESRCH once the group is gone.
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}()
		return nil
	}
}
