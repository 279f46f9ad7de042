//go:build windows

package poller

import (
	"context"
	"os/exec"

	"github.com/basecrew/taskscheduler/internal/account"
)

func probeCommand(ctx context.Context, script string, identity *account.Identity) *exec.Cmd {
	return exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script)
}
