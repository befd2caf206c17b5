//go:build !windows

package pydevd

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup kills a launched interpreter and every child it forked.
// A negative pid signals the whole process group.
func killProcessGroup(pid int, cmd *exec.Cmd) error {
	if pid > 0 {
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return err
		}
	} else if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}
