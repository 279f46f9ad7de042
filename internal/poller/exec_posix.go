//go:build !windows

package poller

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/basecrew/taskscheduler/internal/account"
)

// Credential is only set when the daemon is root and dropping to a
// different uid; see runner/exec_posix.go's commandForTask for why.
func probeCommand(ctx context.Context, script string, identity *account.Identity) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if identity != nil && os.Geteuid() == 0 && identity.UID != os.Geteuid() {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(identity.UID),
			Gid: uint32(identity.GID),
		}
	}
	return cmd
}
