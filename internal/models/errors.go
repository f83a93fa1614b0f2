package models

import "errors"

// ErrStaleState is returned by conditional updates when the account's
// persisted phase no longer matches what the caller observed. The caller
// must re-read and re-decide rather than overwrite.
var ErrStaleState = errors.New("account state changed since read")

// ErrAccountNotFound is returned when an account id resolves to nothing.
var ErrAccountNotFound = errors.New("account not found")
