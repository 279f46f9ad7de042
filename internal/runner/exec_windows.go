//go:build windows

package runner

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/basecrew/taskscheduler/internal/account"
)

// commandForTask builds the child process for script on Windows (spec
// §4.5: "Windows → powershell -NoProfile -Command <script_body>"). The
// account field is informational only; the child inherits the daemon's
// own identity (spec §4.5 step 4).
func commandForTask(script string, identity *account.Identity) *exec.Cmd {
	return exec.Command("powershell", "-NoProfile", "-Command", script)
}

// signalProcessGroup terminates pid outright. Windows has no POSIX
// signal delivery or process-group kill; killWithGrace's SIGTERM step
// and its later SIGKILL step both land here, so the first call already
// ends the process rather than asking it to shut down cleanly. Without
// this, the child would never exit on timeout and Runner.Wait would
// block forever draining it.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
