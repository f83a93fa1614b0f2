package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karmaloop/karmaloop/internal/models"
)

// PostgresAccountRepository implements models.AccountRepository over
// PostgreSQL. Progress is stored as a versioned JSONB blob; everything the
// engine filters on lives in plain columns.
type PostgresAccountRepository struct {
	db *sql.DB
}

// NewPostgresAccountRepository creates a PostgreSQL-backed account repository.
func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `
	id, owner_id, username, connected, karma, phase, paused_from,
	failure_reason, warmup_started_at, warmup_completed_at, last_checked,
	progress, created_at, updated_at
`

// GetByID retrieves an account by ID, or nil if not found.
func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Store creates or updates an account.
func (r *PostgresAccountRepository) Store(ctx context.Context, account *models.Account) error {
	progressJSON, err := json.Marshal(account.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Phase == "" {
		account.Phase = models.PhaseNotStarted
	}

	query := `
		INSERT INTO accounts
		(id, owner_id, username, connected, karma, phase, paused_from,
		 failure_reason, warmup_started_at, warmup_completed_at, last_checked, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			username = EXCLUDED.username,
			connected = EXCLUDED.connected,
			karma = EXCLUDED.karma,
			phase = EXCLUDED.phase,
			paused_from = EXCLUDED.paused_from,
			failure_reason = EXCLUDED.failure_reason,
			warmup_started_at = EXCLUDED.warmup_started_at,
			warmup_completed_at = EXCLUDED.warmup_completed_at,
			last_checked = EXCLUDED.last_checked,
			progress = EXCLUDED.progress,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowContext(ctx, query,
		account.ID,
		account.OwnerID,
		account.Username,
		account.Connected,
		account.Karma,
		account.Phase,
		nullString(string(account.PausedFrom)),
		nullString(string(account.FailureReason)),
		account.WarmupStartedAt,
		account.WarmupCompletedAt,
		account.LastChecked,
		progressJSON,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
}

// UpdateWarmupState persists phase/progress/connection changes conditional
// on the phase the caller last observed. A phase mismatch means another
// writer got there first; the caller receives ErrStaleState and must re-read.
func (r *PostgresAccountRepository) UpdateWarmupState(ctx context.Context, account *models.Account, expectedPhase models.WarmupPhase) error {
	progressJSON, err := json.Marshal(account.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	query := `
		UPDATE accounts SET
			connected = $3,
			karma = $4,
			phase = $5,
			paused_from = $6,
			failure_reason = $7,
			warmup_started_at = $8,
			warmup_completed_at = $9,
			last_checked = $10,
			progress = $11,
			updated_at = NOW()
		WHERE id = $1 AND phase = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		account.ID,
		expectedPhase,
		account.Connected,
		account.Karma,
		account.Phase,
		nullString(string(account.PausedFrom)),
		nullString(string(account.FailureReason)),
		account.WarmupStartedAt,
		account.WarmupCompletedAt,
		account.LastChecked,
		progressJSON,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrStaleState
	}
	return nil
}

// UpdateCheckResult records risk-check observations without touching the
// warmup state columns, so it can run alongside a sweep safely.
func (r *PostgresAccountRepository) UpdateCheckResult(ctx context.Context, accountID string, karma int, checkedAt time.Time) error {
	query := `
		UPDATE accounts SET
			karma = $2,
			last_checked = $3,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, accountID, karma, checkedAt)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// List returns accounts matching the filter, oldest first.
func (r *PostgresAccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Phase != "" {
		query += fmt.Sprintf(" AND phase = $%d", argIdx)
		args = append(args, filter.Phase)
		argIdx++
	}
	if filter.MinKarma != nil {
		query += fmt.Sprintf(" AND karma >= $%d", argIdx)
		args = append(args, *filter.MinKarma)
		argIdx++
	}
	if filter.MaxKarma != nil {
		query += fmt.Sprintf(" AND karma <= $%d", argIdx)
		args = append(args, *filter.MaxKarma)
		argIdx++
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// CountByPhase returns fleet counts keyed by phase.
func (r *PostgresAccountRepository) CountByPhase(ctx context.Context) (map[models.WarmupPhase]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT phase, COUNT(*) FROM accounts GROUP BY phase`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.WarmupPhase]int)
	for rows.Next() {
		var phase models.WarmupPhase
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, err
		}
		counts[phase] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var pausedFrom, failureReason sql.NullString
	var startedAt, completedAt, lastChecked sql.NullTime
	var progressJSON []byte

	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&account.Username,
		&account.Connected,
		&account.Karma,
		&account.Phase,
		&pausedFrom,
		&failureReason,
		&startedAt,
		&completedAt,
		&lastChecked,
		&progressJSON,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.PausedFrom = models.WarmupPhase(pausedFrom.String)
	account.FailureReason = models.FailureReason(failureReason.String)
	account.WarmupStartedAt = nullTimePtr(startedAt)
	account.WarmupCompletedAt = nullTimePtr(completedAt)
	account.LastChecked = nullTimePtr(lastChecked)

	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &account.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress for %s: %w", account.ID, err)
		}
	}
	if account.Progress.Version == 0 {
		account.Progress.Version = models.ProgressVersion
	}

	return &account, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
