//go:build windows

package lockfile

import "os"

// isProcessRunning checks if a process with the given PID is running.
// On Windows FindProcess only fails for invalid PIDs, so this errs on the
// side of treating the lock as live.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
