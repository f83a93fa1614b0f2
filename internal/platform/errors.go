package platform

import (
	"errors"
	"fmt"
)

// ErrProfileNotFound indicates the platform reports no profile for the
// username. For an account we control, this is a strong shadowban signal.
var ErrProfileNotFound = errors.New("profile not found")

// TargetNotPermittedError indicates the platform rejected an action on a
// specific target (community rules, bans, karma gates). It is not an
// account-level failure: the caller excludes the target and moves on.
type TargetNotPermittedError struct {
	Target string
	Reason string
}

func (e *TargetNotPermittedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("target %q not permitted: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("target %q not permitted", e.Target)
}

// IsTargetNotPermitted reports whether err carries a target rejection.
func IsTargetNotPermitted(err error) bool {
	var tnp *TargetNotPermittedError
	return errors.As(err, &tnp)
}

// TransientError wraps a network, timeout, rate-limit or auth failure that
// may succeed on a later attempt. It feeds the account's error tracking.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a transient platform failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
