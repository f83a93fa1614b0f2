package warmup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karmaloop/karmaloop/internal/models"
)

// BulkCoordinator fans one control operation out across a selected set of
// accounts, collecting per-account outcomes. A failure on one account is
// recorded and never aborts the batch.
type BulkCoordinator struct {
	repo         models.AccountRepository
	orchestrator *Orchestrator
	detector     *Detector
	logger       *slog.Logger
}

// NewBulkCoordinator constructs a coordinator over the given engine parts.
func NewBulkCoordinator(
	repo models.AccountRepository,
	orchestrator *Orchestrator,
	detector *Detector,
	logger *slog.Logger,
) *BulkCoordinator {
	return &BulkCoordinator{
		repo:         repo,
		orchestrator: orchestrator,
		detector:     detector,
		logger:       logger,
	}
}

// Apply resolves the selector to a concrete account set and applies the
// operation to each. The result always reports totals and per-account
// errors; nothing fails silently.
func (c *BulkCoordinator) Apply(ctx context.Context, op models.BulkOperation, selector models.AccountFilter) (*models.BulkResult, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unsupported bulk operation %q", op)
	}

	accounts, err := c.resolve(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("resolve selector: %w", err)
	}

	result := &models.BulkResult{Operation: op, Total: len(accounts)}

	if op == models.BulkCheckShadowban {
		// Delegates to the sequential batch path, inter-call delay included.
		c.applyShadowbanCheck(ctx, accounts, result)
		return result, nil
	}

	for _, account := range accounts {
		if err := c.applyOne(ctx, op, account.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BulkError{
				AccountID: account.ID,
				Message:   err.Error(),
			})
			continue
		}
		result.Successful++
	}

	c.logger.Info("bulk operation applied",
		"operation", op,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	return result, nil
}

func (c *BulkCoordinator) resolve(ctx context.Context, selector models.AccountFilter) ([]*models.Account, error) {
	if len(selector.IDs) > 0 {
		accounts := make([]*models.Account, 0, len(selector.IDs))
		for _, id := range selector.IDs {
			account, err := c.repo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if account == nil {
				return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
			}
			accounts = append(accounts, account)
		}
		return accounts, nil
	}
	return c.repo.List(ctx, selector)
}

func (c *BulkCoordinator) applyOne(ctx context.Context, op models.BulkOperation, accountID string) error {
	switch op {
	case models.BulkStart:
		return c.orchestrator.StartAccountWarmup(ctx, accountID)
	case models.BulkPause:
		return c.orchestrator.PauseAccountWarmup(ctx, accountID)
	case models.BulkResume:
		return c.orchestrator.ResumeAccountWarmup(ctx, accountID)
	case models.BulkStop:
		return c.orchestrator.StopAccountWarmup(ctx, accountID)
	case models.BulkResetProgress:
		return c.orchestrator.ResetAccountWarmup(ctx, accountID)
	}
	return fmt.Errorf("unsupported bulk operation %q", op)
}

func (c *BulkCoordinator) applyShadowbanCheck(ctx context.Context, accounts []*models.Account, result *models.BulkResult) {
	ids := make([]string, len(accounts))
	for i, account := range accounts {
		ids[i] = account.ID
	}

	results, err := c.detector.BatchCheckShadowban(ctx, ids)
	if err != nil {
		// Context cancellation mid-batch: report what completed.
		c.logger.Warn("batch shadowban check interrupted", "error", err, "completed", len(results))
	}

	for _, r := range results {
		if len(r.Indicators) == 1 && r.Indicators[0] == indicatorCheckFailed && r.Confidence == 0 && !r.IsShadowbanned {
			result.Failed++
			result.Errors = append(result.Errors, models.BulkError{
				AccountID: r.AccountID,
				Message:   "shadowban check inconclusive",
			})
		} else {
			result.Successful++
		}
		if r.IsShadowbanned {
			result.Shadowbanned++
		}
	}
}
