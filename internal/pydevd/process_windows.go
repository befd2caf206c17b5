//go:build windows

package pydevd

import (
	"errors"
	"os"
	"os/exec"
)

// killProcessGroup kills a launched interpreter. Windows has no Unix-style
// process groups, so only the direct process is killed.
func killProcessGroup(_ int, cmd *exec.Cmd) error {
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}
