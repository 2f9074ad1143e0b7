// Package repository stores portal attempts in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/srun-login/internal/models"
	"github.com/lib/pq"
)

// PostgresAttemptRepository records and lists attempts.
type PostgresAttemptRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAttemptRepository creates a repository over db, which must
// already carry the attempts table (see db.InitPostgres).
func NewPostgresAttemptRepository(db *sql.DB) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{DB: db}
}

// Record stores a finished attempt. Recording the same ID twice is a no-op.
func (r *PostgresAttemptRepository) Record(ctx context.Context, a models.Attempt) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO attempts (id, action, outcome, step, online_ip, ac_id, portal_error, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		a.ID, string(a.Action), string(a.Outcome), a.Step,
		nullable(a.OnlineIP), nullable(a.AcID), nullable(a.PortalError), nullable(a.Error),
		a.StartedAt, a.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("Record failed: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first. When actions is not
// empty only those actions are listed.
func (r *PostgresAttemptRepository) Recent(ctx context.Context, limit int, actions ...models.Action) ([]models.Attempt, error) {
	filter := make([]string, 0, len(actions))
	for _, a := range actions {
		filter = append(filter, string(a))
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, action, outcome, step, online_ip, ac_id, portal_error, error, started_at, finished_at
		  FROM attempts
		 WHERE cardinality($1::text[]) = 0 OR action = ANY($1)
		 ORDER BY started_at DESC
		 LIMIT $2
	`, pq.Array(filter), limit)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var (
			a                                     models.Attempt
			action, outcome                       string
			onlineIP, acID, portalErr, attemptErr sql.NullString
		)
		if err := rows.Scan(&a.ID, &action, &outcome, &a.Step, &onlineIP, &acID, &portalErr, &attemptErr, &a.StartedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		a.Action = models.Action(action)
		a.Outcome = models.Outcome(outcome)
		a.OnlineIP = onlineIP.String
		a.AcID = acID.String
		a.PortalError = portalErr.String
		a.Error = attemptErr.String
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return attempts, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
