package models

import (
	"context"
	"time"
)

// Account represents one social platform identity under warmup management.
type Account struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"owner_id"`
	Username          string        `json:"username"`
	Connected         bool          `json:"connected"`
	Karma             int           `json:"karma"`
	Phase             WarmupPhase   `json:"phase"`
	PausedFrom        WarmupPhase   `json:"paused_from,omitempty"`
	FailureReason     FailureReason `json:"failure_reason,omitempty"`
	WarmupStartedAt   *time.Time    `json:"warmup_started_at,omitempty"`
	WarmupCompletedAt *time.Time    `json:"warmup_completed_at,omitempty"`
	LastChecked       *time.Time    `json:"last_checked,omitempty"`
	Progress          Progress      `json:"progress"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// WarmupPhase represents the lifecycle state of an account's warmup.
type WarmupPhase string

const (
	PhaseNotStarted WarmupPhase = "not_started"
	PhaseUpvotes    WarmupPhase = "phase_1_upvotes"
	PhaseComments   WarmupPhase = "phase_2_comments"
	PhasePosts      WarmupPhase = "phase_3_posts"
	PhaseMixed      WarmupPhase = "phase_4_mixed"
	PhaseCompleted  WarmupPhase = "completed"
	PhasePaused     WarmupPhase = "paused"
	PhaseFailed     WarmupPhase = "failed"
)

// ActivePhases lists phases in which the sweep acts on an account, in order.
var ActivePhases = []WarmupPhase{PhaseUpvotes, PhaseComments, PhasePosts, PhaseMixed}

// IsActive reports whether the phase is one the sweep acts on.
func (p WarmupPhase) IsActive() bool {
	switch p {
	case PhaseUpvotes, PhaseComments, PhasePosts, PhaseMixed:
		return true
	}
	return false
}

// IsTerminal reports whether the phase can only be left via an explicit reset.
func (p WarmupPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Next returns the phase that follows p in the forward progression. Terminal
// and non-active phases return p unchanged.
func (p WarmupPhase) Next() WarmupPhase {
	switch p {
	case PhaseUpvotes:
		return PhaseComments
	case PhaseComments:
		return PhasePosts
	case PhasePosts:
		return PhaseMixed
	case PhaseMixed:
		return PhaseCompleted
	}
	return p
}

// FailureReason distinguishes how an account ended up in PhaseFailed.
// An operator-initiated stop warrants different follow-up than an automatic
// shadowban detection, even though both land in the same terminal phase.
type FailureReason string

const (
	FailureNone           FailureReason = ""
	FailureOperatorStop   FailureReason = "operator_stop"
	FailureShadowban      FailureReason = "shadowban"
	FailureErrorThreshold FailureReason = "error_threshold"
)

// ActionKind identifies the kind of warmup action performed on the platform.
type ActionKind string

const (
	ActionUpvote  ActionKind = "upvote"
	ActionComment ActionKind = "comment"
	ActionPost    ActionKind = "post"
)

// ProgressVersion is the current schema version of the Progress record.
const ProgressVersion = 1

// MaxFailedAttempts bounds the diagnostic failure history kept per account.
const MaxFailedAttempts = 20

// Progress is the orchestrator-owned warmup bookkeeping for one account.
// Exactly one writer (the sweep, serialized per account) mutates it; all
// other components treat it as read-only.
type Progress struct {
	Version         int             `json:"version"`
	Daily           []DayEntry      `json:"daily,omitempty"`
	ExcludedTargets []string        `json:"excluded_targets,omitempty"`
	ErrorTracking   ErrorTracking   `json:"error_tracking"`
	FailedAttempts  []FailedAttempt `json:"failed_attempts,omitempty"`
	LastActionAt    *time.Time      `json:"last_action_at,omitempty"`
}

// NewProgress returns an empty progress record at the current version.
func NewProgress() Progress {
	return Progress{Version: ProgressVersion}
}

// DayEntry records the actions performed on one calendar day.
type DayEntry struct {
	Date    string         `json:"date"` // YYYY-MM-DD
	Actions []ActionRecord `json:"actions"`
}

// ActionRecord is one performed action.
type ActionRecord struct {
	Kind        ActionKind `json:"kind"`
	Target      string     `json:"target"`
	PerformedAt time.Time  `json:"performed_at"`
}

// ErrorTracking drives exponential backoff after consecutive failures.
type ErrorTracking struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}

// FailedAttempt is a diagnostic record of one failed platform call.
type FailedAttempt struct {
	Kind       ActionKind `json:"kind"`
	Target     string     `json:"target,omitempty"`
	Error      string     `json:"error"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// DayKey formats a timestamp as the calendar-day key used by Daily entries.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ActionsOn returns the number of actions recorded for the given day key.
func (p *Progress) ActionsOn(day string) int {
	for i := range p.Daily {
		if p.Daily[i].Date == day {
			return len(p.Daily[i].Actions)
		}
	}
	return 0
}

// RecordAction appends an action under the day it was performed.
func (p *Progress) RecordAction(rec ActionRecord) {
	day := DayKey(rec.PerformedAt)
	for i := range p.Daily {
		if p.Daily[i].Date == day {
			p.Daily[i].Actions = append(p.Daily[i].Actions, rec)
			return
		}
	}
	p.Daily = append(p.Daily, DayEntry{Date: day, Actions: []ActionRecord{rec}})
}

// TotalActions counts all recorded actions across days.
func (p *Progress) TotalActions() int {
	total := 0
	for i := range p.Daily {
		total += len(p.Daily[i].Actions)
	}
	return total
}

// IsTargetExcluded reports whether the target was previously rejected by the
// platform and must not be used again for this account.
func (p *Progress) IsTargetExcluded(target string) bool {
	for _, t := range p.ExcludedTargets {
		if t == target {
			return true
		}
	}
	return false
}

// ExcludeTarget adds the target to the exclusion set if not already present.
func (p *Progress) ExcludeTarget(target string) {
	if !p.IsTargetExcluded(target) {
		p.ExcludedTargets = append(p.ExcludedTargets, target)
	}
}

// RecordFailure increments the consecutive-failure counter and appends a
// bounded diagnostic entry.
func (p *Progress) RecordFailure(attempt FailedAttempt) {
	p.ErrorTracking.ConsecutiveFailures++
	at := attempt.OccurredAt
	p.ErrorTracking.LastFailureAt = &at
	p.FailedAttempts = append(p.FailedAttempts, attempt)
	if len(p.FailedAttempts) > MaxFailedAttempts {
		p.FailedAttempts = p.FailedAttempts[len(p.FailedAttempts)-MaxFailedAttempts:]
	}
}

// ResetFailures clears the consecutive-failure counter after a success.
func (p *Progress) ResetFailures() {
	p.ErrorTracking.ConsecutiveFailures = 0
}

// ActiveDaysInWindow counts distinct days with at least one action within the
// last windowDays calendar days (inclusive of today).
func (p *Progress) ActiveDaysInWindow(now time.Time, windowDays int) int {
	cutoff := DayKey(now.AddDate(0, 0, -(windowDays - 1)))
	count := 0
	for i := range p.Daily {
		if p.Daily[i].Date >= cutoff && len(p.Daily[i].Actions) > 0 {
			count++
		}
	}
	return count
}

// AccountFilter selects accounts for listing and bulk operations.
type AccountFilter struct {
	OwnerID  string
	Phase    WarmupPhase
	MinKarma *int
	MaxKarma *int
	IDs      []string
}

// AccountRepository defines persistence operations for warmup accounts.
type AccountRepository interface {
	// GetByID retrieves an account by ID, or nil if not found.
	GetByID(ctx context.Context, id string) (*Account, error)

	// Store creates or updates an account.
	Store(ctx context.Context, account *Account) error

	// List returns accounts matching the filter.
	List(ctx context.Context, filter AccountFilter) ([]*Account, error)

	// UpdateWarmupState persists phase/progress/connection changes for an
	// account, conditional on the phase the caller last observed. A stale
	// expectation returns ErrStaleState without applying the update.
	UpdateWarmupState(ctx context.Context, account *Account, expectedPhase WarmupPhase) error

	// UpdateCheckResult records platform observations from a risk check:
	// the refreshed karma and the check timestamp. It never touches phase
	// or progress, so it cannot clobber a concurrent warmup writer.
	UpdateCheckResult(ctx context.Context, accountID string, karma int, checkedAt time.Time) error

	// CountByPhase returns fleet counts keyed by phase.
	CountByPhase(ctx context.Context) (map[WarmupPhase]int, error)
}
