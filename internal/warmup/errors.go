package warmup

import "errors"

// ErrInvalidState indicates a control operation is not valid for the
// account's current phase (pausing a failed account, resuming one that is
// not paused, starting one mid-warmup). It is a caller error, never retried.
var ErrInvalidState = errors.New("operation not valid for current warmup phase")
