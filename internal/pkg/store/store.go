// Package store persists client side settings in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

const (
	keyMinTemp = "minTemp"
	keyMaxTemp = "maxTemp"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db, logger: zap.L()}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}

// Get returns the stored value for key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// LoadThresholds returns the cached safe range. Missing or unparsable
// values fall back to the defaults individually.
func (s *Store) LoadThresholds(ctx context.Context) (model.Thresholds, error) {
	th := model.DefaultThresholds
	for key, dst := range map[string]*float64{keyMinTemp: &th.Min, keyMaxTemp: &th.Max} {
		raw, ok, err := s.Get(ctx, key)
		if err != nil {
			return model.DefaultThresholds, err
		}
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.logger.Warn("ignoring stored threshold", zap.String("key", key), zap.String("value", raw))
			continue
		}
		*dst = v
	}
	return th, nil
}

func (s *Store) SaveThresholds(ctx context.Context, th model.Thresholds) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for key, v := range map[string]float64{keyMinTemp: th.Min, keyMaxTemp: th.Max} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, strconv.FormatFloat(v, 'f', -1, 64), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}
