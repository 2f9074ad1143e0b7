package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// PruneAttempts deletes attempts that finished more than retention ago.
// A non-positive retention keeps everything.
func PruneAttempts(
	ctx context.Context,
	db *sql.DB,
	retention time.Duration,
	log *zap.Logger,
) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC()
	res, err := db.ExecContext(ctx, `
        DELETE FROM attempts
         WHERE finished_at < $1
    `, cutoff)
	if err != nil {
		log.Error("failed to prune attempt history", zap.Error(err))
		return 0, err
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		log.Info("pruned attempt history", zap.Int64("removed", rows))
	}
	return rows, nil
}
