package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/karmaloop/karmaloop/internal/models"
)

// PostgresErrorEventRepository implements models.ErrorEventRepository using
// PostgreSQL.
type PostgresErrorEventRepository struct {
	db *sql.DB
}

// NewPostgresErrorEventRepository creates a PostgreSQL-based error event
// repository.
func NewPostgresErrorEventRepository(db *sql.DB) *PostgresErrorEventRepository {
	return &PostgresErrorEventRepository{db: db}
}

// Store saves one error event.
func (r *PostgresErrorEventRepository) Store(ctx context.Context, event models.ErrorEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO error_events (id, account_id, kind, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		nullString(event.AccountID),
		event.Kind,
		event.Message,
		event.CreatedAt,
	)
	return err
}

// CountSince returns the number of events recorded after the cutoff.
func (r *PostgresErrorEventRepository) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM error_events WHERE created_at > $1`, cutoff,
	).Scan(&count)
	return count, err
}

// ListRecent returns up to limit most recent events.
func (r *PostgresErrorEventRepository) ListRecent(ctx context.Context, limit int) ([]models.ErrorEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, kind, message, created_at
		FROM error_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ErrorEvent
	for rows.Next() {
		var event models.ErrorEvent
		var accountID sql.NullString
		if err := rows.Scan(&event.ID, &accountID, &event.Kind, &event.Message, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.AccountID = accountID.String
		events = append(events, event)
	}
	return events, rows.Err()
}
