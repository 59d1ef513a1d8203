// Package apiclient authenticates registered API callers by a timestamped
// secret hash.
package apiclient

import "time"

// APIClient is an application allowed to start a BankID login.
type APIClient struct {
	ID          string
	Secret      string
	Name        string
	IsActive    bool
	Permissions []string
	CreatedAt   time.Time
}
