package cli

import (
	"maestro/internal/api"
)

// Exit codes for scripted use of the client commands. Anything beyond
// a generic failure gets a distinct code so wrappers can branch on
// "not found" versus "control plane unreachable" without parsing text.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitConflict   = 4
	ExitTimeout    = 5
	ExitTransport  = 6
)

// ExitCode maps an error to its exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case api.IsValidation(err):
		return ExitValidation
	case api.IsNotFound(err):
		return ExitNotFound
	case api.IsConflict(err):
		return ExitConflict
	case api.IsTimeout(err):
		return ExitTimeout
	case api.IsTransport(err):
		return ExitTransport
	default:
		return ExitError
	}
}
