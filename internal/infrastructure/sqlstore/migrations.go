package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Migration is one schema step. Statements run in order inside a transaction.
type Migration struct {
	Version    string
	Statements []string
}

// AllMigrations contains all schema migrations in order.
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    price_per_kg BIGINT NOT NULL,
    stock_kg TEXT NOT NULL,
    image_ref TEXT NOT NULL DEFAULT '',
    version BIGINT NOT NULL,
    updated_at TEXT NOT NULL
)`,
			`CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    number BIGINT NOT NULL UNIQUE,
    lines TEXT NOT NULL,
    customer_name TEXT NOT NULL,
    customer_phone TEXT NOT NULL,
    customer_email TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    fulfilled INTEGER NOT NULL DEFAULT 0,
    payment_ref TEXT NOT NULL DEFAULT '',
    billing_artifact_ref TEXT NOT NULL DEFAULT '',
    cancel_reason TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at)`,
			`CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL UNIQUE,
    payment_ref TEXT NOT NULL,
    amount BIGINT NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    customer TEXT NOT NULL,
    created_at TEXT NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
			`CREATE TABLE IF NOT EXISTS sequences (
    name TEXT PRIMARY KEY,
    value BIGINT NOT NULL
)`,
			`INSERT INTO sequences (name, value) VALUES ('order_number', 0)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("sqlstore: create schema_version: %w", err)
	}

	current, err := s.currentVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("sqlstore: invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := s.exec(ctx, tx, "INSERT INTO schema_version (version) VALUES (?)", m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("sqlstore: apply migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}

// currentVersion is the highest recorded version, or 0.0.0 on a fresh database.
func (s *Store) currentVersion(ctx context.Context) (*semver.Version, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: read schema_version: %w", err)
	}
	defer rows.Close()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlstore: scan schema_version: %w", err)
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: invalid recorded schema version %s: %w", raw, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// SchemaVersion reports the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	v, err := s.currentVersion(ctx)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
