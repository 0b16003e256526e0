package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQL-backed stores. Questions travel as a JSON column so a whole test is
// replaced in one statement and a definition can never be edited one
// question at a time underneath a running session.

type SQLDefinitionStore struct {
	db *sql.DB
}

func NewSQLDefinitionStore(db *sql.DB) *SQLDefinitionStore {
	return &SQLDefinitionStore{db: db}
}

func (s *SQLDefinitionStore) SaveTest(ctx context.Context, t Test) (Test, error) {
	t, err := PrepareTest(t)
	if err != nil {
		return Test{}, err
	}
	qj, err := json.Marshal(t.Questions)
	if err != nil {
		return Test{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tests (id,title,description,category,passing_score,duration_min,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
			category=EXCLUDED.category, passing_score=EXCLUDED.passing_score,
			duration_min=EXCLUDED.duration_min, questions_json=EXCLUDED.questions_json`,
		t.ID, t.Title, t.Description, t.Category, t.PassingScore, t.Duration, string(qj), time.Now().Unix())
	if err != nil {
		return Test{}, err
	}
	return t, nil
}

func (s *SQLDefinitionStore) GetTest(ctx context.Context, id string) (Test, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,description,category,passing_score,duration_min,questions_json
		FROM tests WHERE id=$1`, id)
	t, err := scanTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, fmt.Errorf("test %q: %w", id, ErrNotFound)
	}
	return t, err
}

func (s *SQLDefinitionStore) ListTests(ctx context.Context, category string) ([]Test, error) {
	q := `SELECT id,title,description,category,passing_score,duration_min,questions_json FROM tests`
	args := []any{}
	if category != "" {
		q += ` WHERE category=$1`
		args = append(args, category)
	}
	q += ` ORDER BY title`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLDefinitionStore) DeleteTest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("test %q: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (Test, error) {
	var t Test
	var qjson string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &t.PassingScore, &t.Duration, &qjson); err != nil {
		return Test{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &t.Questions); err != nil {
		return Test{}, err
	}
	return t, nil
}

type SQLResultHistory struct {
	db *sql.DB
}

func NewSQLResultHistory(db *sql.DB) *SQLResultHistory {
	return &SQLResultHistory{db: db}
}

func (s *SQLResultHistory) Append(ctx context.Context, r Result) error {
	aj, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO results
		(test_id,test_title,total_points,earned_points,percentage,passed,time_spent,completed_at,answers_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.TestID, r.TestTitle, r.TotalPoints, r.EarnedPoints, r.Percentage, r.Passed,
		r.TimeSpent, r.CompletedAt.Unix(), string(aj))
	return err
}

func (s *SQLResultHistory) List(ctx context.Context, testID string) ([]Result, error) {
	q := `SELECT test_id,test_title,total_points,earned_points,percentage,passed,time_spent,completed_at,answers_json
		FROM results`
	args := []any{}
	if testID != "" {
		q += ` WHERE test_id=$1`
		args = append(args, testID)
	}
	q += ` ORDER BY completed_at, seq`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var completed int64
		var ajson string
		if err := rows.Scan(&r.TestID, &r.TestTitle, &r.TotalPoints, &r.EarnedPoints,
			&r.Percentage, &r.Passed, &r.TimeSpent, &completed, &ajson); err != nil {
			return nil, err
		}
		r.CompletedAt = time.Unix(completed, 0).UTC()
		if err := json.Unmarshal([]byte(ajson), &r.Answers); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLResultHistory) Aggregate(ctx context.Context, testID string) (Summary, error) {
	rs, err := s.List(ctx, testID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rs), nil
}

type SQLProtocolRegistry struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLProtocolRegistry(db *sql.DB, now func() time.Time) *SQLProtocolRegistry {
	if now == nil {
		now = time.Now
	}
	return &SQLProtocolRegistry{db: db, now: now}
}

func (s *SQLProtocolRegistry) NextNumber(ctx context.Context, year int) (string, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM protocols WHERE year=$1`, year).Scan(&n); err != nil {
		return "", err
	}
	return FormatProtocolNumber(year, n+1), nil
}

// allocation retry budget before the race escalates to the caller
const protocolRetries = 5

// Record counts the year's rows and inserts inside one transaction. The
// UNIQUE(year, seq) constraint catches two transactions that read the
// same count; the loser recomputes and retries.
func (s *SQLProtocolRegistry) Record(ctx context.Context, r Result, listenerName, listenerPosition string) (ProtocolRecord, error) {
	var lastErr error
	for i := 0; i < protocolRetries; i++ {
		rec, err := s.tryRecord(ctx, r, listenerName, listenerPosition)
		if err == nil {
			return rec, nil
		}
		if !isUniqueViolation(err) {
			return ProtocolRecord{}, err
		}
		lastErr = err
	}
	return ProtocolRecord{}, fmt.Errorf("%w: protocol allocation: %v", ErrConflict, lastErr)
}

func (s *SQLProtocolRegistry) tryRecord(ctx context.Context, r Result, listenerName, listenerPosition string) (ProtocolRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProtocolRecord{}, err
	}
	defer tx.Rollback()

	now := s.now()
	year := now.Year()
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM protocols WHERE year=$1`, year).Scan(&n); err != nil {
		return ProtocolRecord{}, err
	}
	rec := ProtocolRecord{
		ID:               uuid.NewString(),
		ProtocolNumber:   FormatProtocolNumber(year, n+1),
		TestID:           r.TestID,
		TestTitle:        r.TestTitle,
		ListenerName:     listenerName,
		ListenerPosition: listenerPosition,
		Percentage:       r.Percentage,
		Passed:           r.Passed,
		CompletedAt:      r.CompletedAt,
		CreatedAt:        now,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO protocols
		(id,year,seq,protocol_number,test_id,test_title,listener_name,listener_position,percentage,passed,completed_at,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, year, n+1, rec.ProtocolNumber, rec.TestID, rec.TestTitle,
		rec.ListenerName, rec.ListenerPosition, rec.Percentage, rec.Passed,
		rec.CompletedAt.Unix(), rec.CreatedAt.Unix()); err != nil {
		return ProtocolRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ProtocolRecord{}, err
	}
	return rec, nil
}

func (s *SQLProtocolRegistry) List(ctx context.Context) ([]ProtocolRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,protocol_number,test_id,test_title,listener_name,listener_position,percentage,passed,completed_at,created_at
		FROM protocols ORDER BY year DESC, seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProtocolRecord
	for rows.Next() {
		var rec ProtocolRecord
		var completed, created int64
		if err := rows.Scan(&rec.ID, &rec.ProtocolNumber, &rec.TestID, &rec.TestTitle,
			&rec.ListenerName, &rec.ListenerPosition, &rec.Percentage, &rec.Passed,
			&completed, &created); err != nil {
			return nil, err
		}
		rec.CompletedAt = time.Unix(completed, 0).UTC()
		rec.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLProtocolRegistry) Purge(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM protocols`)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// sqlite: "UNIQUE constraint failed"; postgres: SQLSTATE 23505 "duplicate key"
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "23505")
}
