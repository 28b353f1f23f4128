//go:build windows

package hooks

import "os/exec"

// detach is a no-op on Windows; Start already does not tie the child to our
// console lifetime in a way that matters here.
func detach(cmd *exec.Cmd) {}
