package verify

import (
	"errors"
	"fmt"

	"github.com/janusbot/janus/internal/captcha"
)

// FailureKind tags the variant of a session failure. Each kind has exactly one
// handling branch in the engine; none of them are distinguished by type checks.
type FailureKind int

const (
	// FailureConfiguration marks missing required guild settings. Reported to
	// the user, session aborted, never escalated.
	FailureConfiguration FailureKind = iota
	// FailureTransport marks an unreachable or malformed captcha service.
	FailureTransport
	// FailurePermission marks a role operation the bot lacks rights for.
	FailurePermission
	// FailureNotFound marks a role or member that no longer exists.
	FailureNotFound
	// FailureInternal marks anything else unexpected.
	FailureInternal
)

func (k FailureKind) String() string {
	switch k {
	case FailureConfiguration:
		return "configuration"
	case FailureTransport:
		return "transport"
	case FailurePermission:
		return "permission"
	case FailureNotFound:
		return "not_found"
	case FailureInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SessionError is the tagged failure variant carried out of a session step.
type SessionError struct {
	Kind FailureKind
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// classify maps an untagged error onto its failure kind.
func classify(err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, captcha.ErrTransport) {
		return &SessionError{Kind: FailureTransport, Err: err}
	}

	return &SessionError{Kind: FailureInternal, Err: err}
}
