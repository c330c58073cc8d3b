package requestlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Store interface {
	InsertBatch(ctx context.Context, entries []Entry) error
	ListForUser(ctx context.Context, userID string, limit int) ([]Entry, error)
	GetForUser(ctx context.Context, id, userID string) (*Entry, error)
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertBatch writes every entry with a single statement.
func (r *Repository) InsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	const columns = 5
	values := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*columns)
	for i, e := range entries {
		n := i * columns
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5))
		args = append(args, e.ID, e.Method, e.URI, e.UserID, e.DateTime)
	}
	query := "INSERT INTO request_logs (id, method, uri, user_id, date_time) VALUES " + strings.Join(values, ", ")
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

const selectEntry = `SELECT id, method, uri, user_id, date_time FROM request_logs`

func (r *Repository) ListForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntry+" WHERE user_id = $1 ORDER BY date_time DESC, id DESC LIMIT $2", userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Method, &e.URI, &e.UserID, &e.DateTime); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Repository) GetForUser(ctx context.Context, id, userID string) (*Entry, error) {
	var e Entry
	err := r.db.QueryRowContext(ctx, selectEntry+" WHERE id = $1 AND user_id = $2", id, userID).
		Scan(&e.ID, &e.Method, &e.URI, &e.UserID, &e.DateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("entry %q: %w", id, ErrEntryNotFound)
		}
		return nil, err
	}
	return &e, nil
}

func (r *Repository) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM request_logs WHERE date_time < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
