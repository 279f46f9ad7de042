package api

import (
	"context"
	"os/user"
	"runtime"
)

// AccountsView is the response to GET /api/accounts.
type AccountsView struct {
	Accounts       []string `json:"accounts"`
	PosixSupported bool     `json:"posix_supported"`
	DefaultAccount string   `json:"default_account"`
}

// ListAccounts returns the accounts a task may run under. Real account
// enumeration (walking /etc/passwd, an LDAP directory, …) belongs to
// the external collaborator spec §1 carves out; this is the minimal
// self-contained fallback so the endpoint has a concrete, correct
// contract without that collaborator wired up.
func (s *Service) ListAccounts(ctx context.Context) (*AccountsView, error) {
	current, err := user.Current()
	name := "unknown"
	if err == nil {
		name = current.Username
	}
	accounts := []string{name}
	if runtime.GOOS != "windows" && name != "root" {
		accounts = append(accounts, "root")
	}
	return &AccountsView{
		Accounts:       accounts,
		PosixSupported: runtime.GOOS != "windows",
		DefaultAccount: name,
	}, nil
}
