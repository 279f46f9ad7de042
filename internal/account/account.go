// Package account resolves and validates the OS principal a task runs
// under. The core treats account as an opaque string (spec §3); this
// package is the validation step the Runner re-applies at execution
// time, independent of whatever enumerated the name in the UI.
package account

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strconv"

	"github.com/basecrew/taskscheduler/internal/core"
)

// AllowedGroups are the only POSIX group ids a non-root execution
// account may belong to (spec §3: "must be a member of groups 0/1000/1001").
var AllowedGroups = []int{0, 1000, 1001}

// Identity is a resolved OS principal.
type Identity struct {
	Name string
	UID  int
	GID  int
}

// Resolve validates name against the platform's account rules and
// returns the identity to run the task as.
//
// POSIX: if the daemon runs as root, name is looked up and its primary
// or supplementary group must be one of AllowedGroups. If the daemon
// does not run as root, name must equal the current effective user —
// a non-root daemon cannot assume another identity.
//
// Windows: the account field is informational only; the child always
// inherits the daemon's own identity.
func Resolve(name string) (*Identity, error) {
	if runtime.GOOS == "windows" {
		return &Identity{Name: name}, nil
	}
	return resolvePOSIX(name)
}

func resolvePOSIX(name string) (*Identity, error) {
	if os.Geteuid() != 0 {
		current, err := user.Current()
		if err != nil {
			return nil, core.NewError(core.ErrInternal, "resolve current user", err)
		}
		if name != current.Username {
			return nil, core.NewError(core.ErrPermissionDenied,
				fmt.Sprintf("daemon runs as %q, not root; cannot run task as %q", current.Username, name), nil)
		}
		uid, _ := strconv.Atoi(current.Uid)
		gid, _ := strconv.Atoi(current.Gid)
		return &Identity{Name: name, UID: uid, GID: gid}, nil
	}

	u, err := user.Lookup(name)
	if err != nil {
		return nil, core.NewError(core.ErrValidationFailed, fmt.Sprintf("unknown account %q", name), err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, core.NewError(core.ErrInternal, "parse uid", err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, core.NewError(core.ErrInternal, "parse gid", err)
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return nil, core.NewError(core.ErrInternal, "list group membership", err)
	}
	if !anyGroupAllowed(gid, groupIDs) {
		return nil, core.NewError(core.ErrPermissionDenied,
			fmt.Sprintf("account %q is not a member of an allowed group (0, 1000, 1001)", name), nil)
	}
	return &Identity{Name: name, UID: uid, GID: gid}, nil
}

func anyGroupAllowed(primaryGID int, groupIDs []string) bool {
	if isAllowed(primaryGID) {
		return true
	}
	for _, raw := range groupIDs {
		gid, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if isAllowed(gid) {
			return true
		}
	}
	return false
}

func isAllowed(gid int) bool {
	for _, allowed := range AllowedGroups {
		if gid == allowed {
			return true
		}
	}
	return false
}
