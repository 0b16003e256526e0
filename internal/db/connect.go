package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:assessment.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/assessment?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS tests (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  passing_score INTEGER NOT NULL,
  duration_min INTEGER NOT NULL,
  questions_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  test_id TEXT NOT NULL,
  test_title TEXT NOT NULL,
  total_points INTEGER NOT NULL,
  earned_points INTEGER NOT NULL,
  percentage INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  time_spent INTEGER NOT NULL,
  completed_at INTEGER NOT NULL,
  answers_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_test ON results(test_id, completed_at);

CREATE TABLE IF NOT EXISTS protocols (
  id TEXT PRIMARY KEY,
  year INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  protocol_number TEXT NOT NULL UNIQUE,
  test_id TEXT NOT NULL,
  test_title TEXT NOT NULL,
  listener_name TEXT NOT NULL DEFAULT '',
  listener_position TEXT NOT NULL DEFAULT '',
  percentage INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  completed_at INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  UNIQUE (year, seq)
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  typ TEXT NOT NULL,                        -- e.g., result_recorded
  key TEXT NOT NULL,                        -- natural key: test id / protocol number
  data TEXT NOT NULL,                       -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS tests (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  passing_score INTEGER NOT NULL,
  duration_min INTEGER NOT NULL,
  questions_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
  seq BIGSERIAL PRIMARY KEY,
  test_id TEXT NOT NULL,
  test_title TEXT NOT NULL,
  total_points INTEGER NOT NULL,
  earned_points INTEGER NOT NULL,
  percentage INTEGER NOT NULL,
  passed BOOLEAN NOT NULL,
  time_spent INTEGER NOT NULL,
  completed_at BIGINT NOT NULL,
  answers_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_test ON results(test_id, completed_at);

CREATE TABLE IF NOT EXISTS protocols (
  id TEXT PRIMARY KEY,
  year INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  protocol_number TEXT NOT NULL UNIQUE,
  test_id TEXT NOT NULL,
  test_title TEXT NOT NULL,
  listener_name TEXT NOT NULL DEFAULT '',
  listener_position TEXT NOT NULL DEFAULT '',
  percentage INTEGER NOT NULL,
  passed BOOLEAN NOT NULL,
  completed_at BIGINT NOT NULL,
  created_at BIGINT NOT NULL,
  UNIQUE (year, seq)
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
