//go:build unix

package hooks

import (
	"os/exec"
	"syscall"
)

// detach puts the hook in its own session so it survives the parent command
// exiting and never receives our terminal signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
