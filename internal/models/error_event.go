package models

import (
	"context"
	"time"
)

// ErrorEvent records one operational error for health reporting. Events are
// written by the engine components and read in aggregate by the health
// monitor; they are diagnostics, not part of the account state machine.
type ErrorEvent struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id,omitempty"`
	Kind      ErrorEventKind `json:"kind"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
}

// ErrorEventKind categorizes operational errors.
type ErrorEventKind string

const (
	ErrorEventActionFailed     ErrorEventKind = "action_failed"
	ErrorEventTargetsExhausted ErrorEventKind = "targets_exhausted"
	ErrorEventPersistFailed    ErrorEventKind = "persist_failed"
	ErrorEventCheckFailed      ErrorEventKind = "check_failed"
	ErrorEventAccountFailed    ErrorEventKind = "account_failed"
)

// ErrorEventRepository stores and aggregates operational error events.
type ErrorEventRepository interface {
	// Store saves one error event.
	Store(ctx context.Context, event ErrorEvent) error

	// CountSince returns the number of events recorded after the cutoff.
	CountSince(ctx context.Context, cutoff time.Time) (int, error)

	// ListRecent returns up to limit most recent events.
	ListRecent(ctx context.Context, limit int) ([]ErrorEvent, error)
}
