package database

import (
	"context"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
	"github.com/anicoll/ato-dashboard/internal/pkg/publisher"
)

func (db *Database) Write(ctx context.Context, readings model.Readings) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range readings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO telemetry (time_stamp, identifier, slug, value, unit_of_measurement)
			VALUES ($1, $2, $3, $4, $5)
		`, r.Timestamp, r.Identifier, r.Slug, r.Value, r.Unit); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterDevice(ctx context.Context, device *model.Device) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO device (identifier, name, firmware_version, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (identifier) DO UPDATE
		SET name = excluded.name, firmware_version = excluded.firmware_version, updated_at = now();`,
		publisher.Identifier(*device), device.Name, device.FirmwareVersion)
	return err
}
