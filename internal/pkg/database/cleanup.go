package database

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const retentionDays = 8

// Cleanup prunes telemetry that has fallen out of the retention window.
// Device rows are kept.
func (db *Database) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	tag, err := db.pool.Exec(ctx, "DELETE FROM telemetry WHERE time_stamp < $1", cutoff)
	if err != nil {
		return err
	}
	zap.L().Debug("pruned telemetry", zap.Int64("rows", tag.RowsAffected()), zap.Time("cutoff", cutoff))
	return nil
}
