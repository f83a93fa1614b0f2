package models

import (
	"fmt"
	"testing"
	"time"
)

func TestPhaseProgression(t *testing.T) {
	order := []WarmupPhase{PhaseUpvotes, PhaseComments, PhasePosts, PhaseMixed, PhaseCompleted}
	for i := 0; i < len(order)-1; i++ {
		if got := order[i].Next(); got != order[i+1] {
			t.Errorf("%s.Next() = %s, want %s", order[i], got, order[i+1])
		}
	}

	// Terminal and inactive phases never move forward.
	for _, phase := range []WarmupPhase{PhaseNotStarted, PhasePaused, PhaseCompleted, PhaseFailed} {
		if got := phase.Next(); got != phase {
			t.Errorf("%s.Next() = %s, want unchanged", phase, got)
		}
	}
}

func TestPhaseClassification(t *testing.T) {
	for _, phase := range ActivePhases {
		if !phase.IsActive() {
			t.Errorf("%s should be active", phase)
		}
		if phase.IsTerminal() {
			t.Errorf("%s should not be terminal", phase)
		}
	}
	for _, phase := range []WarmupPhase{PhaseCompleted, PhaseFailed} {
		if !phase.IsTerminal() {
			t.Errorf("%s should be terminal", phase)
		}
		if phase.IsActive() {
			t.Errorf("%s should not be active", phase)
		}
	}
	if PhasePaused.IsActive() || PhasePaused.IsTerminal() {
		t.Error("paused is neither active nor terminal")
	}
}

func TestProgressDailyGrouping(t *testing.T) {
	p := NewProgress()
	day1 := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	p.RecordAction(ActionRecord{Kind: ActionUpvote, Target: "aww", PerformedAt: day1})
	p.RecordAction(ActionRecord{Kind: ActionComment, Target: "pics", PerformedAt: day1.Add(2 * time.Hour)})
	p.RecordAction(ActionRecord{Kind: ActionUpvote, Target: "aww", PerformedAt: day2})

	if got := p.ActionsOn("2025-06-10"); got != 2 {
		t.Errorf("actions on day 1 = %d, want 2", got)
	}
	if got := p.ActionsOn("2025-06-11"); got != 1 {
		t.Errorf("actions on day 2 = %d, want 1", got)
	}
	if got := p.ActionsOn("2025-06-12"); got != 0 {
		t.Errorf("actions on empty day = %d, want 0", got)
	}
	if got := p.TotalActions(); got != 3 {
		t.Errorf("total actions = %d, want 3", got)
	}
}

func TestDayKeyIsUTC(t *testing.T) {
	// 23:30 in UTC+3 is 20:30 UTC the same day; 01:30 in UTC+3 is the
	// previous UTC day.
	loc := time.FixedZone("UTC+3", 3*3600)
	if got := DayKey(time.Date(2025, 6, 10, 1, 30, 0, 0, loc)); got != "2025-06-09" {
		t.Errorf("DayKey = %s, want 2025-06-09", got)
	}
	if got := DayKey(time.Date(2025, 6, 10, 23, 30, 0, 0, loc)); got != "2025-06-10" {
		t.Errorf("DayKey = %s, want 2025-06-10", got)
	}
}

func TestExcludeTargetIdempotent(t *testing.T) {
	p := NewProgress()
	p.ExcludeTarget("aww")
	p.ExcludeTarget("aww")
	p.ExcludeTarget("pics")

	if len(p.ExcludedTargets) != 2 {
		t.Errorf("expected 2 excluded targets, got %v", p.ExcludedTargets)
	}
	if !p.IsTargetExcluded("aww") || !p.IsTargetExcluded("pics") {
		t.Error("expected both targets excluded")
	}
	if p.IsTargetExcluded("askreddit") {
		t.Error("unexcluded target reported excluded")
	}
}

func TestFailureTrackingBounded(t *testing.T) {
	p := NewProgress()
	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < MaxFailedAttempts+10; i++ {
		p.RecordFailure(FailedAttempt{
			Kind:       ActionUpvote,
			Error:      fmt.Sprintf("failure %d", i),
			OccurredAt: at.Add(time.Duration(i) * time.Minute),
		})
	}

	if p.ErrorTracking.ConsecutiveFailures != MaxFailedAttempts+10 {
		t.Errorf("consecutive failures = %d, want %d",
			p.ErrorTracking.ConsecutiveFailures, MaxFailedAttempts+10)
	}
	if len(p.FailedAttempts) != MaxFailedAttempts {
		t.Fatalf("failed attempts = %d, want bounded at %d", len(p.FailedAttempts), MaxFailedAttempts)
	}
	// The bound keeps the newest entries.
	last := p.FailedAttempts[len(p.FailedAttempts)-1]
	if last.Error != fmt.Sprintf("failure %d", MaxFailedAttempts+9) {
		t.Errorf("expected newest attempt kept, got %s", last.Error)
	}

	p.ResetFailures()
	if p.ErrorTracking.ConsecutiveFailures != 0 {
		t.Errorf("expected counter reset, got %d", p.ErrorTracking.ConsecutiveFailures)
	}
	if len(p.FailedAttempts) != MaxFailedAttempts {
		t.Error("reset must keep the diagnostic history")
	}
}

func TestActiveDaysInWindow(t *testing.T) {
	p := NewProgress()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	// Actions today, 3 days ago, and 10 days ago (outside a 7-day window).
	for _, daysAgo := range []int{0, 3, 10} {
		p.RecordAction(ActionRecord{
			Kind:        ActionUpvote,
			Target:      "aww",
			PerformedAt: now.AddDate(0, 0, -daysAgo),
		})
	}

	if got := p.ActiveDaysInWindow(now, 7); got != 2 {
		t.Errorf("active days = %d, want 2", got)
	}
}
