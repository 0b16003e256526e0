// Package eventlog appends domain events to an append-only table so
// downstream consumers (export, sync) can tail the engine's output
// without touching its stores.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const (
	TypeResultRecorded = "result_recorded"
	TypeProtocolIssued = "protocol_issued"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// Append marshals payload and appends one event.
func (r *Repo) Append(ctx context.Context, typ, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		typ, key, string(data), time.Now().Unix())
	return err
}

// After returns up to limit events past the given offset, oldest first.
func (r *Repo) After(ctx context.Context, offset int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, data, created_at FROM event_log
		 WHERE "offset" > $1 ORDER BY "offset" LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
