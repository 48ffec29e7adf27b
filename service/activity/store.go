package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultListLimit = 100

type Store struct {
	db   *sql.DB
	feed *Feed
}

// NewStore publishes every added record to feed when it is non-nil.
func NewStore(db *sql.DB, feed *Feed) (*Store, error) {
	store := &Store{db: db, feed: feed}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS activity (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			url TEXT,
			actionType TEXT,
			actionData TEXT,
			userInput TEXT,
			source TEXT NOT NULL,
			handled INTEGER NOT NULL,
			createdAt INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_createdAt ON activity(createdAt)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create activity tables: %w", err)
		}
	}
	return nil
}

// Add stores rec, filling ID and CreatedAt when unset, and returns the
// stored record.
func (s *Store) Add(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (id, kind, url, actionType, actionData, userInput, source, handled, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Kind, nullString(rec.URL), nullString(rec.ActionType), nullString(rec.ActionData),
		nullString(rec.UserInput), rec.Source, rec.Handled, rec.CreatedAt.UnixNano())
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert activity: %w", err)
	}

	if s.feed != nil {
		s.feed.Publish(rec)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, url, actionType, actionData, userInput, source, handled, createdAt
		FROM activity WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, url, actionType, actionData, userInput, source, handled, createdAt
		FROM activity ORDER BY createdAt DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Prune deletes records created before t and reports how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity WHERE createdAt < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var url, actionType, actionData, userInput sql.NullString
	var createdAt int64

	if err := row.Scan(&rec.ID, &rec.Kind, &url, &actionType, &actionData, &userInput, &rec.Source, &rec.Handled, &createdAt); err != nil {
		return nil, err
	}

	rec.URL = url.String
	rec.ActionType = actionType.String
	rec.ActionData = actionData.String
	rec.UserInput = userInput.String
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
