package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

// Readings returns the archived values of one sensor, newest first. Without
// a window it covers the last two days.
func (db *Database) Readings(ctx context.Context, identifier, slug string, from, to *time.Time) (model.Readings, error) {
	if from == nil || to == nil {
		now := time.Now()
		start := now.AddDate(0, 0, -2)
		from, to = &start, &now
	}
	const query = `
	SELECT time_stamp, identifier, slug, value, unit_of_measurement
	FROM telemetry
	WHERE identifier = $1 AND slug = $2 AND time_stamp BETWEEN $3 AND $4
	ORDER BY time_stamp DESC;
	`
	rows, err := db.pool.Query(ctx, query, identifier, slug, *from, *to)
	if err != nil {
		return nil, err
	}
	return scanReadings(rows)
}

// LatestReadings returns the newest value of every sensor.
func (db *Database) LatestReadings(ctx context.Context, identifier string) (model.Readings, error) {
	const query = `
	SELECT DISTINCT ON (slug) time_stamp, identifier, slug, value, unit_of_measurement
	FROM telemetry
	WHERE identifier = $1
	ORDER BY slug, time_stamp DESC;
	`
	rows, err := db.pool.Query(ctx, query, identifier)
	if err != nil {
		return nil, err
	}
	return scanReadings(rows)
}

func scanReadings(rows pgx.Rows) (model.Readings, error) {
	defer rows.Close()
	readings := model.Readings{}
	for rows.Next() {
		var r model.Reading
		if err := rows.Scan(&r.Timestamp, &r.Identifier, &r.Slug, &r.Value, &r.Unit); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}
