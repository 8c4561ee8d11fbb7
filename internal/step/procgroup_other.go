//go:build !unix

package step

import (
	"os/exec"
	"time"
)

func killProcessGroup(cmd *exec.Cmd, grace time.Duration) {
	cmd.WaitDelay = grace
}
