package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karmaloop/karmaloop/internal/models"
)

// MemoryAccountRepository is an in-memory models.AccountRepository used in
// tests and local development. Semantics mirror the Postgres implementation,
// including the conditional-update check.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

// NewMemoryAccountRepository creates an empty in-memory repository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]*models.Account)}
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return cloneAccount(account), nil
}

func (r *MemoryAccountRepository) Store(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Phase == "" {
		account.Phase = models.PhaseNotStarted
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		if existing, ok := r.accounts[account.ID]; ok {
			account.CreatedAt = existing.CreatedAt
		} else {
			account.CreatedAt = now
		}
	}
	account.UpdatedAt = now

	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *MemoryAccountRepository) UpdateWarmupState(_ context.Context, account *models.Account, expectedPhase models.WarmupPhase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.accounts[account.ID]
	if !ok {
		return models.ErrAccountNotFound
	}
	if existing.Phase != expectedPhase {
		return models.ErrStaleState
	}

	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now()
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *MemoryAccountRepository) UpdateCheckResult(_ context.Context, accountID string, karma int, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}

	existing.Karma = karma
	checked := checkedAt
	existing.LastChecked = &checked
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryAccountRepository) List(_ context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var accounts []*models.Account
	for _, account := range r.accounts {
		if filter.OwnerID != "" && account.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Phase != "" && account.Phase != filter.Phase {
			continue
		}
		if filter.MinKarma != nil && account.Karma < *filter.MinKarma {
			continue
		}
		if filter.MaxKarma != nil && account.Karma > *filter.MaxKarma {
			continue
		}
		accounts = append(accounts, cloneAccount(account))
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (r *MemoryAccountRepository) CountByPhase(_ context.Context) (map[models.WarmupPhase]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.WarmupPhase]int)
	for _, account := range r.accounts {
		counts[account.Phase]++
	}
	return counts, nil
}

func cloneAccount(account *models.Account) *models.Account {
	clone := *account
	clone.Progress = cloneProgress(account.Progress)
	return &clone
}

func cloneProgress(p models.Progress) models.Progress {
	clone := p
	clone.Daily = make([]models.DayEntry, len(p.Daily))
	for i, day := range p.Daily {
		clone.Daily[i] = models.DayEntry{
			Date:    day.Date,
			Actions: append([]models.ActionRecord(nil), day.Actions...),
		}
	}
	clone.ExcludedTargets = append([]string(nil), p.ExcludedTargets...)
	clone.FailedAttempts = append([]models.FailedAttempt(nil), p.FailedAttempts...)
	return clone
}

// MemoryErrorEventRepository is an in-memory models.ErrorEventRepository.
type MemoryErrorEventRepository struct {
	mu     sync.RWMutex
	events []models.ErrorEvent
}

// NewMemoryErrorEventRepository creates an empty in-memory event store.
func NewMemoryErrorEventRepository() *MemoryErrorEventRepository {
	return &MemoryErrorEventRepository{}
}

func (r *MemoryErrorEventRepository) Store(_ context.Context, event models.ErrorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryErrorEventRepository) CountSince(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, event := range r.events {
		if event.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryErrorEventRepository) ListRecent(_ context.Context, limit int) ([]models.ErrorEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]models.ErrorEvent, limit)
	copy(out, r.events[len(r.events)-limit:])
	return out, nil
}
