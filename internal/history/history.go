// Package history keeps a queryable SQLite table of past verifications.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/vetter/internal/model"
)

// timeLayout is fixed-width so checked_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one stored verification.
type Record struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	Username    string       `json:"username"`
	DisplayName string       `json:"display_name,omitempty"`
	Status      model.Status `json:"status"`
	Flags       []model.Flag `json:"flags"`
	RefHash     string       `json:"ref_hash"`
	CheckedAt   time.Time    `json:"checked_at"`
}

// NewRecord builds a Record from a finished verification.
func NewRecord(p *model.Profile, v model.Verdict, refHash string, at time.Time) Record {
	r := Record{Status: v.Status, Flags: v.Flags, RefHash: refHash, CheckedAt: at.UTC()}
	if p != nil {
		r.UserID = p.UserID
		r.Username = p.Username
		r.DisplayName = p.DisplayName
	}
	return r
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS verifications (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL,
		username     TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		flags        TEXT NOT NULL,
		ref_hash     TEXT NOT NULL DEFAULT '',
		checked_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verifications_user ON verifications(user_id, checked_at);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts r and returns its row id.
func (s *Store) Save(ctx context.Context, r Record) (int64, error) {
	flags := r.Flags
	if flags == nil {
		flags = []model.Flag{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return 0, fmt.Errorf("marshal flags: %w", err)
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO verifications (user_id, username, display_name, status, flags, ref_hash, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Username, r.DisplayName, string(r.Status), string(flagsJSON), r.RefHash,
		r.CheckedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert verification: %w", err)
	}
	return res.LastInsertId()
}

const selectColumns = `SELECT id, user_id, username, display_name, status, flags, ref_hash, checked_at FROM verifications`

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, selectColumns+` ORDER BY checked_at DESC, id DESC LIMIT ?`, limit)
}

// ForUser returns every record for userID, newest first.
func (s *Store) ForUser(ctx context.Context, userID int64) ([]Record, error) {
	return s.query(ctx, selectColumns+` WHERE user_id = ? ORDER BY checked_at DESC, id DESC`, userID)
}

// Last returns the most recent record for userID, or nil when none exists.
func (s *Store) Last(ctx context.Context, userID int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE user_id = ? ORDER BY checked_at DESC, id DESC LIMIT 1`, userID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Counts returns the number of stored records per status.
func (s *Store) Counts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM verifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count verifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[model.Status]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[model.Status(st)] = n
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r         Record
		status    string
		flagsJSON string
		checkedAt string
	)
	if err := sc.Scan(&r.ID, &r.UserID, &r.Username, &r.DisplayName, &status, &flagsJSON, &r.RefHash, &checkedAt); err != nil {
		return Record{}, err
	}
	r.Status = model.Status(status)
	if err := json.Unmarshal([]byte(flagsJSON), &r.Flags); err != nil {
		return Record{}, fmt.Errorf("decode flags for record %d: %w", r.ID, err)
	}
	t, err := time.Parse(timeLayout, checkedAt)
	if err != nil {
		return Record{}, fmt.Errorf("decode checked_at for record %d: %w", r.ID, err)
	}
	r.CheckedAt = t
	return r, nil
}
