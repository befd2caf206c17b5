//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setProcAttr starts the interpreter in its own session so terminating a
// launch kills the program and every child it forked.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
