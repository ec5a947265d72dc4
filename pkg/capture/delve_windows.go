//go:build windows

package capture

import (
	"os/exec"
	"syscall"
)

// setupProcAttr keeps Delve from opening a console window on Windows.
func setupProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
