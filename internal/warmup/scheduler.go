package warmup

import (
	"math"
	"math/rand"
	"time"

	"github.com/karmaloop/karmaloop/internal/models"
)

// NotDueReason explains why the scheduler declined to act this tick.
type NotDueReason string

const (
	ReasonNone            NotDueReason = ""
	ReasonInactivePhase   NotDueReason = "inactive_phase"
	ReasonDailyCap        NotDueReason = "daily_cap_reached"
	ReasonTooSoon         NotDueReason = "interval_not_elapsed"
	ReasonBackingOff      NotDueReason = "backing_off"
	ReasonTargetsExcluded NotDueReason = "all_targets_excluded"
)

// Decision is the scheduler's verdict for one account at one point in time.
type Decision struct {
	Due    bool
	Reason NotDueReason

	// Kind and Target are set when Due.
	Kind   models.ActionKind
	Target string

	// AdvancePhase reports that the phase completion criteria are met,
	// independently of whether an action fires this tick.
	AdvancePhase bool

	// NextEligibleAt is when the account becomes eligible again; zero when
	// unknown (inactive phase or exhausted targets).
	NextEligibleAt time.Time
}

// Scheduler is the pure decision policy: given an account and its progress,
// decide whether an action is due and which one. It holds no per-account
// state and never touches the platform or storage.
type Scheduler struct {
	policy Policy

	// randFloat yields values in [0,1); injectable for deterministic tests.
	randFloat func() float64
}

// NewScheduler creates a scheduler over the given policy.
func NewScheduler(policy Policy) *Scheduler {
	return &Scheduler{
		policy:    policy,
		randFloat: rand.Float64,
	}
}

// Next evaluates the account at the given instant.
func (s *Scheduler) Next(account *models.Account, now time.Time) Decision {
	phase, ok := s.policy.Phases[account.Phase]
	if !ok {
		return Decision{Reason: ReasonInactivePhase}
	}

	decision := Decision{
		AdvancePhase: s.completionMet(account, phase, now),
	}

	// Pacing: hard per-day ceiling regardless of elapsed time.
	if account.Progress.ActionsOn(models.DayKey(now)) >= phase.DailyCap {
		decision.Reason = ReasonDailyCap
		decision.NextEligibleAt = nextDayStart(now)
		return decision
	}

	// Cadence: jittered average interval since the last action. Backoff
	// pushes eligibility further out after consecutive failures.
	if account.Progress.LastActionAt != nil {
		eligible := account.Progress.LastActionAt.Add(s.jitteredInterval(phase.AverageInterval))
		backoff := s.backoffDelay(account.Progress.ErrorTracking.ConsecutiveFailures)
		eligible = eligible.Add(backoff)

		if now.Before(eligible) {
			if backoff > 0 {
				decision.Reason = ReasonBackingOff
			} else {
				decision.Reason = ReasonTooSoon
			}
			decision.NextEligibleAt = eligible
			return decision
		}
	} else if account.Progress.ErrorTracking.ConsecutiveFailures > 0 {
		// No action yet but failures recorded: back off from the last failure.
		if last := account.Progress.ErrorTracking.LastFailureAt; last != nil {
			eligible := last.Add(s.backoffDelay(account.Progress.ErrorTracking.ConsecutiveFailures))
			if now.Before(eligible) {
				decision.Reason = ReasonBackingOff
				decision.NextEligibleAt = eligible
				return decision
			}
		}
	}

	target, ok := s.pickTarget(account, phase)
	if !ok {
		// Every candidate is excluded. The account is stuck until the
		// policy changes; surface as a distinct reason so the caller can
		// raise a health issue instead of silently stalling.
		decision.Reason = ReasonTargetsExcluded
		return decision
	}

	decision.Due = true
	decision.Kind = s.pickKind(phase)
	decision.Target = target
	return decision
}

// completionMet checks the three phase-advance criteria: minimum elapsed
// time AND minimum successful actions AND karma floor.
func (s *Scheduler) completionMet(account *models.Account, phase PhasePolicy, now time.Time) bool {
	if account.WarmupStartedAt == nil {
		return false
	}
	elapsed := now.Sub(*account.WarmupStartedAt)
	if elapsed < time.Duration(phase.MinDays)*24*time.Hour {
		return false
	}
	if account.Progress.TotalActions() < phase.MinActions {
		return false
	}
	return account.Karma >= phase.MinKarma
}

// pickTarget rotates through the phase's candidate list, skipping excluded
// targets. Rotation position follows the total action count so consecutive
// actions spread across communities.
func (s *Scheduler) pickTarget(account *models.Account, phase PhasePolicy) (string, bool) {
	if len(phase.Targets) == 0 {
		return "", false
	}
	start := account.Progress.TotalActions() % len(phase.Targets)
	for i := 0; i < len(phase.Targets); i++ {
		candidate := phase.Targets[(start+i)%len(phase.Targets)]
		if !account.Progress.IsTargetExcluded(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// pickKind samples the phase's weighted action mix.
func (s *Scheduler) pickKind(phase PhasePolicy) models.ActionKind {
	if len(phase.Mix) == 1 {
		return phase.Mix[0].Kind
	}

	total := 0.0
	for _, w := range phase.Mix {
		total += w.Weight
	}

	roll := s.randFloat() * total
	for _, w := range phase.Mix {
		roll -= w.Weight
		if roll < 0 {
			return w.Kind
		}
	}
	return phase.Mix[len(phase.Mix)-1].Kind
}

// jitteredInterval applies a bounded random multiplier to the average
// interval so the account never acts on a fixed period.
func (s *Scheduler) jitteredInterval(avg time.Duration) time.Duration {
	spread := s.policy.JitterMax - s.policy.JitterMin
	multiplier := s.policy.JitterMin + s.randFloat()*spread
	return time.Duration(float64(avg) * multiplier)
}

// backoffDelay computes base * 2^failures capped at the configured maximum.
func (s *Scheduler) backoffDelay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	delay := float64(s.policy.BackoffBase) * math.Pow(2, float64(failures))
	if delay > float64(s.policy.BackoffMax) {
		delay = float64(s.policy.BackoffMax)
	}
	return time.Duration(delay)
}

func nextDayStart(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
}
