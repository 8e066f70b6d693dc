//go:build windows

package backend

import (
	"os"
	"os/exec"
)

var errProcessGone = os.ErrProcessDone

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
