package flows

import "errors"

// ErrDirectoryUnavailable marks a user lookup that failed for infrastructural
// reasons. Flows classify it together with session.ErrUnavailable.
var ErrDirectoryUnavailable = errors.New("user directory unavailable")

// Deps groups flow dependency sets. The engine builds this once and delegates
// request methods to the matching flow.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Validate ValidateDeps
	Logout   LogoutDeps
}
