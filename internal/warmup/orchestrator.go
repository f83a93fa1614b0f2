package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/karmaloop/karmaloop/internal/metrics"
	"github.com/karmaloop/karmaloop/internal/models"
	"github.com/karmaloop/karmaloop/internal/platform"
)

// OrchestratorConfig holds the orchestrator's runtime knobs.
type OrchestratorConfig struct {
	// SweepParallelism bounds how many accounts one sweep processes at once.
	// Sized to respect platform rate limits, not CPU.
	SweepParallelism int

	// FailureThreshold is the consecutive-transient-failure count at which
	// an account is failed and disconnected.
	FailureThreshold int

	// ActionTimeout bounds each platform call made by the sweep.
	ActionTimeout time.Duration
}

// DefaultOrchestratorConfig returns the reference configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SweepParallelism: 8,
		FailureThreshold: 5,
		ActionTimeout:    30 * time.Second,
	}
}

// Orchestrator owns the per-account warmup state machine and drives the
// periodic sweep. All durable state lives in the repository; the orchestrator
// itself holds only configuration and the per-account lock table, so a fresh
// instance can be constructed per process (or per test) without shared
// global state.
type Orchestrator struct {
	repo      models.AccountRepository
	client    platform.Client
	scheduler *Scheduler
	events    models.ErrorEventRepository
	collector *metrics.WarmupCollector
	logger    *slog.Logger
	config    OrchestratorConfig

	// now is injectable for tests.
	now func() time.Time

	// locks serializes all work per account id. Different accounts may be
	// swept fully in parallel; two concurrent sweeps must never double-act
	// on the same account.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewOrchestrator constructs an orchestrator. The collector may be nil in
// tests.
func NewOrchestrator(
	repo models.AccountRepository,
	client platform.Client,
	scheduler *Scheduler,
	events models.ErrorEventRepository,
	collector *metrics.WarmupCollector,
	logger *slog.Logger,
	config OrchestratorConfig,
) *Orchestrator {
	if config.SweepParallelism <= 0 {
		config.SweepParallelism = 1
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}

	return &Orchestrator{
		repo:      repo,
		client:    client,
		scheduler: scheduler,
		events:    events,
		collector: collector,
		logger:    logger,
		config:    config,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing work for one account id.
func (o *Orchestrator) accountLock(id string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()

	lock, ok := o.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}

// StartAccountWarmup moves an account from NOT_STARTED into the first phase.
func (o *Orchestrator) StartAccountWarmup(ctx context.Context, accountID string) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if account.Phase != models.PhaseNotStarted {
		return fmt.Errorf("%w: cannot start warmup from phase %s", ErrInvalidState, account.Phase)
	}

	now := o.now()
	expected := account.Phase
	account.Phase = models.PhaseUpvotes
	account.WarmupStartedAt = &now
	account.WarmupCompletedAt = nil
	account.FailureReason = models.FailureNone
	account.Progress = models.NewProgress()

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist warmup start: %w", err)
	}

	o.logger.Info("warmup started", "account_id", accountID, "username", account.Username)
	return nil
}

// PauseAccountWarmup suspends an actively warming account, remembering the
// phase it was paused from.
func (o *Orchestrator) PauseAccountWarmup(ctx context.Context, accountID string) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if !account.Phase.IsActive() {
		return fmt.Errorf("%w: cannot pause from phase %s", ErrInvalidState, account.Phase)
	}

	expected := account.Phase
	account.PausedFrom = account.Phase
	account.Phase = models.PhasePaused

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist pause: %w", err)
	}

	o.logger.Info("warmup paused", "account_id", accountID, "paused_from", account.PausedFrom)
	return nil
}

// ResumeAccountWarmup returns a paused account to exactly the phase it was
// paused from.
func (o *Orchestrator) ResumeAccountWarmup(ctx context.Context, accountID string) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if account.Phase != models.PhasePaused || !account.PausedFrom.IsActive() {
		return fmt.Errorf("%w: cannot resume from phase %s", ErrInvalidState, account.Phase)
	}

	expected := account.Phase
	account.Phase = account.PausedFrom
	account.PausedFrom = ""

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist resume: %w", err)
	}

	o.logger.Info("warmup resumed", "account_id", accountID, "phase", account.Phase)
	return nil
}

// StopAccountWarmup is an operator action: it unconditionally fails and
// disconnects the account. Recovery requires an explicit reset.
func (o *Orchestrator) StopAccountWarmup(ctx context.Context, accountID string) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	expected := account.Phase
	account.Phase = models.PhaseFailed
	account.PausedFrom = ""
	account.FailureReason = models.FailureOperatorStop
	account.Connected = false

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist stop: %w", err)
	}

	o.logger.Info("warmup stopped by operator", "account_id", accountID)
	return nil
}

// ResetAccountWarmup clears a terminal (or stuck) account back to
// NOT_STARTED, wiping time-bounded progress. Karma is platform-observed
// truth and is never touched.
func (o *Orchestrator) ResetAccountWarmup(ctx context.Context, accountID string) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}

	expected := account.Phase
	account.Phase = models.PhaseNotStarted
	account.PausedFrom = ""
	account.FailureReason = models.FailureNone
	account.WarmupStartedAt = nil
	account.WarmupCompletedAt = nil
	account.Progress = models.NewProgress()

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist reset: %w", err)
	}

	o.logger.Info("warmup progress reset", "account_id", accountID)
	return nil
}

// FailAccount forces an account into the terminal FAILED phase with the
// given reason and disconnects it. Used by the risk detector and the
// consecutive-failure escalation.
func (o *Orchestrator) FailAccount(ctx context.Context, accountID string, reason models.FailureReason) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return o.failLocked(ctx, account, reason)
}

// failLocked applies the failure transition; the caller must hold the
// account's lock.
func (o *Orchestrator) failLocked(ctx context.Context, account *models.Account, reason models.FailureReason) error {
	expected := account.Phase
	account.Phase = models.PhaseFailed
	account.PausedFrom = ""
	account.FailureReason = reason
	account.Connected = false

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}

	o.recordEvent(ctx, models.ErrorEvent{
		AccountID: account.ID,
		Kind:      models.ErrorEventAccountFailed,
		Message:   fmt.Sprintf("account failed: %s", reason),
	})
	o.logger.Warn("account failed", "account_id", account.ID, "reason", reason)
	return nil
}

// Stats summarizes the fleet for operators.
type Stats struct {
	ByPhase        map[models.WarmupPhase]int `json:"by_phase"`
	Total          int                        `json:"total"`
	Active         int                        `json:"active"`
	Completed      int                        `json:"completed"`
	Failed         int                        `json:"failed"`
	CompletionRate float64                    `json:"completion_rate"`
}

// GetWarmupStats returns fleet counts per phase plus derived metrics. It is
// read-only and safe to call concurrently with sweeps.
func (o *Orchestrator) GetWarmupStats(ctx context.Context) (*Stats, error) {
	counts, err := o.repo.CountByPhase(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by phase: %w", err)
	}

	stats := &Stats{ByPhase: counts}
	for phase, count := range counts {
		stats.Total += count
		if phase.IsActive() {
			stats.Active += count
		}
		o.collector.SetPhaseCount(string(phase), count)
	}
	stats.Completed = counts[models.PhaseCompleted]
	stats.Failed = counts[models.PhaseFailed]

	finished := stats.Completed + stats.Failed
	if finished > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(finished)
	}
	return stats, nil
}

// Sweep processes every actively warming account once: asks the scheduler
// for a decision, performs due actions, and advances phases. Accounts are
// processed in parallel up to the configured bound; work for one account is
// strictly serialized via its lock. One account's failure never aborts the
// others.
func (o *Orchestrator) Sweep(ctx context.Context) error {
	started := o.now()

	var accounts []*models.Account
	for _, phase := range models.ActivePhases {
		batch, err := o.repo.List(ctx, models.AccountFilter{Phase: phase})
		if err != nil {
			// Storage trouble: skip the tick rather than crash. The health
			// monitor surfaces the dependency failure separately.
			return fmt.Errorf("list accounts in %s: %w", phase, err)
		}
		accounts = append(accounts, batch...)
	}

	if len(accounts) == 0 {
		return nil
	}

	o.logger.Debug("sweep starting", "accounts", len(accounts))

	sem := semaphore.NewWeighted(int64(o.config.SweepParallelism))
	var wg sync.WaitGroup

	for _, account := range accounts {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(acct *models.Account) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					o.collector.RecordSweepError()
					o.logger.Error("sweep panic isolated", "account_id", acct.ID, "panic", r)
				}
			}()

			if err := o.sweepAccount(ctx, acct.ID); err != nil {
				o.collector.RecordSweepError()
				o.logger.Error("sweep account failed", "account_id", acct.ID, "error", err)
			}
		}(account)
	}

	wg.Wait()
	o.collector.ObserveSweep(o.now().Sub(started))
	return nil
}

// sweepAccount runs one sweep tick for one account under its lock. The
// account is re-read under the lock so a pause or stop issued since listing
// takes effect before any action fires.
func (o *Orchestrator) sweepAccount(ctx context.Context, accountID string) error {
	lock := o.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	account, err := o.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.Phase.IsActive() {
		return nil
	}

	now := o.now()
	decision := o.scheduler.Next(account, now)

	if decision.Reason == ReasonTargetsExcluded {
		o.recordEvent(ctx, models.ErrorEvent{
			AccountID: account.ID,
			Kind:      models.ErrorEventTargetsExhausted,
			Message:   fmt.Sprintf("all candidate targets excluded in phase %s", account.Phase),
		})
	}

	if !decision.Due {
		// The phase can still advance this tick even when no action fires.
		if decision.AdvancePhase {
			return o.advancePhase(ctx, account, now)
		}
		return nil
	}

	actionCtx, cancel := context.WithTimeout(ctx, o.config.ActionTimeout)
	err = o.client.PerformAction(actionCtx, platform.ActionCredentials{
		AccountID: account.ID,
		Username:  account.Username,
	}, decision.Kind, decision.Target)
	cancel()

	switch {
	case err == nil:
		return o.handleActionSuccess(ctx, account, decision, now)
	case platform.IsTargetNotPermitted(err):
		return o.handleTargetRejected(ctx, account, decision, err)
	default:
		return o.handleActionFailure(ctx, account, decision, err, now)
	}
}

// handleActionSuccess records the action and advances the phase when the
// completion criteria are met. State is persisted only after the platform
// call succeeded, so a crash never leaves a phantom action recorded.
func (o *Orchestrator) handleActionSuccess(ctx context.Context, account *models.Account, decision Decision, now time.Time) error {
	o.collector.RecordAction(string(decision.Kind), "success")

	expected := account.Phase
	account.Progress.RecordAction(models.ActionRecord{
		Kind:        decision.Kind,
		Target:      decision.Target,
		PerformedAt: now,
	})
	at := now
	account.Progress.LastActionAt = &at
	account.Progress.ResetFailures()

	if decision.AdvancePhase {
		account.Phase = account.Phase.Next()
		if account.Phase == models.PhaseCompleted {
			account.WarmupCompletedAt = &at
		}
	}

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		o.recordEvent(ctx, models.ErrorEvent{
			AccountID: account.ID,
			Kind:      models.ErrorEventPersistFailed,
			Message:   err.Error(),
		})
		return fmt.Errorf("persist action: %w", err)
	}

	o.logger.Info("warmup action performed",
		"account_id", account.ID,
		"kind", decision.Kind,
		"target", decision.Target,
		"phase", account.Phase,
	)
	return nil
}

// handleTargetRejected excludes the target without touching error tracking.
// The next sweep rotates to a different target; there is no immediate retry.
func (o *Orchestrator) handleTargetRejected(ctx context.Context, account *models.Account, decision Decision, cause error) error {
	o.collector.RecordAction(string(decision.Kind), "target_rejected")

	expected := account.Phase
	account.Progress.ExcludeTarget(decision.Target)

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist target exclusion: %w", err)
	}

	o.logger.Info("target excluded",
		"account_id", account.ID,
		"target", decision.Target,
		"reason", cause.Error(),
	)
	return nil
}

// handleActionFailure tracks the transient failure and escalates to FAILED
// once the consecutive threshold is crossed.
func (o *Orchestrator) handleActionFailure(ctx context.Context, account *models.Account, decision Decision, cause error, now time.Time) error {
	o.collector.RecordAction(string(decision.Kind), "failure")

	expected := account.Phase
	account.Progress.RecordFailure(models.FailedAttempt{
		Kind:       decision.Kind,
		Target:     decision.Target,
		Error:      cause.Error(),
		OccurredAt: now,
	})

	o.recordEvent(ctx, models.ErrorEvent{
		AccountID: account.ID,
		Kind:      models.ErrorEventActionFailed,
		Message:   cause.Error(),
	})

	if account.Progress.ErrorTracking.ConsecutiveFailures >= o.config.FailureThreshold {
		return o.failLocked(ctx, account, models.FailureErrorThreshold)
	}

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist failure tracking: %w", err)
	}

	o.logger.Warn("warmup action failed",
		"account_id", account.ID,
		"kind", decision.Kind,
		"consecutive_failures", account.Progress.ErrorTracking.ConsecutiveFailures,
		"error", cause,
	)
	return nil
}

// advancePhase moves the account forward one phase without an action firing.
func (o *Orchestrator) advancePhase(ctx context.Context, account *models.Account, now time.Time) error {
	expected := account.Phase
	account.Phase = account.Phase.Next()
	if account.Phase == models.PhaseCompleted {
		at := now
		account.WarmupCompletedAt = &at
	}

	if err := o.repo.UpdateWarmupState(ctx, account, expected); err != nil {
		return fmt.Errorf("persist phase advance: %w", err)
	}

	o.logger.Info("phase advanced", "account_id", account.ID, "phase", account.Phase)
	return nil
}

func (o *Orchestrator) loadAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := o.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return nil, models.ErrAccountNotFound
	}
	return account, nil
}

// recordEvent best-effort stores an error event; failures are logged, never
// propagated.
func (o *Orchestrator) recordEvent(ctx context.Context, event models.ErrorEvent) {
	if o.events == nil {
		return
	}
	if err := o.events.Store(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("failed to record error event", "error", err)
	}
}

// SetNowFunc overrides the orchestrator's clock. Test hook.
func (o *Orchestrator) SetNowFunc(now func() time.Time) {
	o.now = now
}

// Now returns the orchestrator's current clock reading.
func (o *Orchestrator) Now() time.Time {
	return o.now()
}
