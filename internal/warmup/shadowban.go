package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/karmaloop/karmaloop/internal/metrics"
	"github.com/karmaloop/karmaloop/internal/models"
	"github.com/karmaloop/karmaloop/internal/platform"
)

// Shadowban heuristic weights. Each independent signal contributes to a
// running score against shadowbanMaxScore; confidence is score/max.
const (
	shadowbanMaxScore = 5.0

	weightProfileNotFound   = 2.0
	weightNoSubmissions     = 0.5
	weightNoEngagement      = 1.5
	weightSubmissionsFailed = 1.0
	weightZeroScoreComments = 1.0

	// Detection threshold for reporting; the higher enforcement threshold
	// gates the automatic transition to FAILED.
	shadowbanDetectThreshold  = 0.6
	shadowbanEnforceThreshold = 0.7

	// minSampleSize is the minimum number of items before an engagement
	// signal counts; smaller samples are too noisy.
	minSampleSize = 6

	sampleFetchLimit = 10
)

// DetectorConfig holds risk detector knobs.
type DetectorConfig struct {
	// BatchDelay is the fixed pause between accounts in a batch check.
	// Batch checks are strictly sequential to respect platform rate limits.
	BatchDelay time.Duration

	// CacheTTL bounds how long a check result is reused before the platform
	// is probed again.
	CacheTTL time.Duration

	// CacheSize bounds the result cache.
	CacheSize int

	// CheckTimeout bounds each platform call made during a check.
	CheckTimeout time.Duration
}

// DefaultDetectorConfig returns the reference configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BatchDelay:   5 * time.Second,
		CacheTTL:     15 * time.Minute,
		CacheSize:    1024,
		CheckTimeout: 30 * time.Second,
	}
}

// Detector runs the shadowban heuristic and the predictive risk score.
type Detector struct {
	repo         models.AccountRepository
	client       platform.Client
	orchestrator *Orchestrator
	collector    *metrics.WarmupCollector
	logger       *slog.Logger
	config       DetectorConfig
	cache        *expirable.LRU[string, models.ShadowbanCheckResult]
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewDetector constructs a detector. The orchestrator handles enforced
// failures; the detector never mutates account state directly beyond
// LastChecked.
func NewDetector(
	repo models.AccountRepository,
	client platform.Client,
	orchestrator *Orchestrator,
	collector *metrics.WarmupCollector,
	logger *slog.Logger,
	config DetectorConfig,
) *Detector {
	if config.CacheSize <= 0 {
		config.CacheSize = 1024
	}

	return &Detector{
		repo:         repo,
		client:       client,
		orchestrator: orchestrator,
		collector:    collector,
		logger:       logger,
		config:       config,
		cache:        expirable.NewLRU[string, models.ShadowbanCheckResult](config.CacheSize, nil, config.CacheTTL),
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// CheckShadowban runs the weighted heuristic against the platform for one
// account. Detector-internal errors yield the safe inconclusive result, not
// a positive detection.
func (d *Detector) CheckShadowban(ctx context.Context, account *models.Account) models.ShadowbanCheckResult {
	result, _ := d.checkShadowban(ctx, account)
	return result
}

// checkShadowban additionally returns the fetched profile so callers can
// refresh platform observations. The profile is nil on a cache hit or when
// the probe failed.
func (d *Detector) checkShadowban(ctx context.Context, account *models.Account) (models.ShadowbanCheckResult, *platform.Profile) {
	if cached, ok := d.cache.Get(account.ID); ok {
		return cached, nil
	}

	result, profile := d.runCheck(ctx, account)

	outcome := "clear"
	switch {
	case result.IsShadowbanned:
		outcome = "shadowbanned"
	case isInconclusive(result):
		outcome = "inconclusive"
	}
	// Inconclusive results are not cached: a transient gateway blip should
	// not suppress re-checking the account for the whole TTL.
	if outcome != "inconclusive" {
		d.cache.Add(account.ID, result)
	}
	d.collector.RecordShadowbanCheck(outcome)

	return result, profile
}

const indicatorCheckFailed = "check failed"

func isInconclusive(result models.ShadowbanCheckResult) bool {
	return len(result.Indicators) == 1 && result.Indicators[0] == indicatorCheckFailed
}

func (d *Detector) runCheck(ctx context.Context, account *models.Account) (models.ShadowbanCheckResult, *platform.Profile) {
	result := models.ShadowbanCheckResult{
		AccountID: account.ID,
		CheckedAt: d.now(),
	}
	score := 0.0

	checkCtx, cancel := context.WithTimeout(ctx, d.config.CheckTimeout)
	defer cancel()

	profile, profileErr := d.client.FetchProfile(checkCtx, account.Username)
	switch {
	case errors.Is(profileErr, platform.ErrProfileNotFound):
		score += weightProfileNotFound
		result.Indicators = append(result.Indicators, "profile not publicly visible")
	case profileErr != nil:
		// The whole check is unreliable when the profile probe itself
		// breaks. Never mistake our own failure for a detection.
		d.logger.Warn("shadowban check failed", "account_id", account.ID, "error", profileErr)
		return models.ShadowbanCheckResult{
			AccountID:  account.ID,
			Confidence: 0,
			Indicators: []string{indicatorCheckFailed},
			CheckedAt:  result.CheckedAt,
		}, nil
	}

	submissions, subErr := d.client.FetchSubmissions(checkCtx, account.Username, sampleFetchLimit)
	switch {
	case subErr != nil:
		// Inconclusive but commonly correlates with restriction.
		score += weightSubmissionsFailed
		result.Indicators = append(result.Indicators, "submissions not retrievable")
	case len(submissions) == 0:
		score += weightNoSubmissions
		result.Indicators = append(result.Indicators, "no recent submissions")
	case len(submissions) >= minSampleSize && noEngagement(submissions):
		score += weightNoEngagement
		result.Indicators = append(result.Indicators, "submissions receive no engagement")
	}

	comments, comErr := d.client.FetchComments(checkCtx, account.Username, sampleFetchLimit)
	// Comment fetch failures are too unreliable to count as a signal.
	if comErr == nil && len(comments) >= minSampleSize && allZeroScore(comments) {
		score += weightZeroScoreComments
		result.Indicators = append(result.Indicators, "comments stuck at zero score")
	}

	result.Confidence = score / shadowbanMaxScore
	result.IsShadowbanned = result.Confidence >= shadowbanDetectThreshold
	return result, profile
}

func noEngagement(submissions []platform.Submission) bool {
	for _, sub := range submissions {
		if sub.Score > 1 || sub.CommentCount > 0 {
			return false
		}
	}
	return true
}

func allZeroScore(comments []platform.Comment) bool {
	for _, c := range comments {
		if c.Score > 1 {
			return false
		}
	}
	return true
}

// CheckAndUpdateShadowban runs the heuristic for an account id and, when the
// confidence crosses the enforcement threshold, forces the account to FAILED
// and disconnects it. LastChecked is always refreshed, and the karma observed
// on the fetched profile replaces the stored value. Persistence goes through
// the narrow check-result update: a concurrent sweep owns phase and progress,
// and the detector must never overwrite them.
func (d *Detector) CheckAndUpdateShadowban(ctx context.Context, accountID string) (models.ShadowbanCheckResult, error) {
	account, err := d.repo.GetByID(ctx, accountID)
	if err != nil {
		return models.ShadowbanCheckResult{}, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account == nil {
		return models.ShadowbanCheckResult{}, models.ErrAccountNotFound
	}

	result, profile := d.checkShadowban(ctx, account)

	karma := account.Karma
	if profile != nil {
		karma = profile.Karma
	}
	if err := d.repo.UpdateCheckResult(ctx, accountID, karma, d.now()); err != nil {
		d.logger.Warn("failed to persist check result", "account_id", accountID, "error", err)
	}

	if result.Confidence >= shadowbanEnforceThreshold {
		d.logger.Warn("shadowban detected, failing account",
			"account_id", accountID,
			"confidence", result.Confidence,
			"indicators", result.Indicators,
		)
		if err := d.orchestrator.FailAccount(ctx, accountID, models.FailureShadowban); err != nil {
			return result, fmt.Errorf("enforce shadowban failure: %w", err)
		}
	}

	return result, nil
}

// BatchCheckShadowban checks accounts strictly sequentially with a fixed
// inter-account delay. The sequencing is a deliberate throughput/safety
// tradeoff: parallel probes would trip the same platform rate limits the
// warmup engine is built to avoid. One account's error is recorded as an
// inconclusive result and never aborts the rest.
func (d *Detector) BatchCheckShadowban(ctx context.Context, accountIDs []string) ([]models.ShadowbanCheckResult, error) {
	results := make([]models.ShadowbanCheckResult, 0, len(accountIDs))

	for i, id := range accountIDs {
		if i > 0 && d.config.BatchDelay > 0 {
			if err := d.sleep(ctx, d.config.BatchDelay); err != nil {
				return results, err
			}
		}

		result, err := d.CheckAndUpdateShadowban(ctx, id)
		if err != nil {
			d.logger.Error("batch shadowban check failed for account", "account_id", id, "error", err)
			results = append(results, models.ShadowbanCheckResult{
				AccountID:  id,
				Confidence: 0,
				Indicators: []string{indicatorCheckFailed},
				CheckedAt:  d.now(),
			})
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// Predictive risk weights (0-100 advisory scale).
const (
	riskMaxKarmaShortfall = 30.0
	riskDisconnected      = 20.0
	riskFailed            = 50.0
	riskLowActivity       = 15.0

	riskActivityWindowDays = 7
	riskActivityRatioFloor = 0.5

	// expectedKarmaPerDay is the reference accumulation rate a healthy
	// warming account should roughly track.
	expectedKarmaPerDay = 3.0
)

// CalculateShadowbanRisk computes a predictive 0-100 risk score from state
// the engine already holds. It is advisory only and never changes state.
func (d *Detector) CalculateShadowbanRisk(account *models.Account) int {
	now := d.now()
	score := 0.0

	if account.WarmupStartedAt != nil {
		days := now.Sub(*account.WarmupStartedAt).Hours() / 24
		if days >= 1 {
			expected := days * expectedKarmaPerDay
			if float64(account.Karma) < expected {
				shortfall := (expected - float64(account.Karma)) / expected
				score += shortfall * riskMaxKarmaShortfall
			}
		}
	}

	if !account.Connected {
		score += riskDisconnected
	}
	if account.Phase == models.PhaseFailed {
		score += riskFailed
	}

	if account.Phase.IsActive() {
		activeDays := account.Progress.ActiveDaysInWindow(now, riskActivityWindowDays)
		ratio := float64(activeDays) / float64(riskActivityWindowDays)
		if ratio < riskActivityRatioFloor {
			score += riskLowActivity
		}
	}

	if score > 100 {
		score = 100
	}
	return int(score)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
