//go:build !windows

package runner

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/basecrew/taskscheduler/internal/account"
)

// commandForTask builds the child process for script, matching spec
// §4.5: "POSIX → /bin/bash -c <script_body>". It runs in its own
// process group so a timeout can signal the whole tree bash may have
// spawned, not just the shell itself.
//
// Credential is only set when the daemon is root and is dropping to a
// different uid; a non-root daemon always runs the task as its own
// user already (account.resolvePOSIX enforces this), and calling
// setresuid/setgroups from an unprivileged process fails with EPERM,
// which would fail cmd.Start itself. Matches the original reference's
// _prepare_account_context, which leaves the credential untouched when
// current_uid == target_uid.
func commandForTask(script string, identity *account.Identity) *exec.Cmd {
	cmd := exec.Command("/bin/bash", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if identity != nil && os.Geteuid() == 0 && identity.UID != os.Geteuid() {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(identity.UID),
			Gid: uint32(identity.GID),
		}
	}
	return cmd
}

// signalProcessGroup delivers sig to every process in pid's group.
// golang.org/x/sys/unix is used here rather than the frozen stdlib
// syscall package, which upstream discourages for new POSIX call sites.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	return unix.Kill(-pid, sig)
}
