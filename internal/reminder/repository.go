package reminder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store interface {
	CreateCategory(ctx context.Context, c *Category) (*Category, error)
	ListCategories(ctx context.Context, userID string) ([]Category, error)
	DeleteCategory(ctx context.Context, id, userID string) error
	CreateReminder(ctx context.Context, r *Reminder) (*Reminder, error)
	GetReminder(ctx context.Context, id, userID string) (*Reminder, error)
	ListReminders(ctx context.Context, filter ListFilter) ([]Reminder, error)
	UpdateReminder(ctx context.Context, id, userID string, upd UpdateReminderRequest) (*Reminder, error)
	DeleteReminder(ctx context.Context, id, userID string) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateCategory(ctx context.Context, c *Category) (*Category, error) {
	query := "INSERT INTO reminder_categories (id, slug, name, user_id) VALUES ($1, $2, $3, $4)"

	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Slug, c.Name, c.UserID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("slug %q: %w", c.Slug, ErrCategoryExists)
		}
		return nil, err
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID string) ([]Category, error) {
	q := `SELECT id, slug, name, user_id FROM reminder_categories WHERE user_id = $1 ORDER BY slug`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.UserID); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory refuses while any reminder still links to the category;
// the link table's foreign key enforces it.
func (r *Repository) DeleteCategory(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM reminder_categories WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return fmt.Errorf("category %q: %w", id, ErrCategoryInUse)
		}
		return err
	}
	return expectOne(res, fmt.Errorf("category %q: %w", id, ErrCategoryNotFound))
}

// Categories come back as a JSON array sorted by ID.
const selectReminder = `
	SELECT r.id, r.name, r.description, r.priority, r.user_id, r.date_time,
	       COALESCE((SELECT json_agg(l.category_id ORDER BY l.category_id)
	                 FROM reminder_category_links l WHERE l.reminder_id = r.id), '[]')
	FROM reminders r`

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (*Reminder, error) {
	var (
		rem        Reminder
		categories []byte
	)
	if err := row.Scan(&rem.ID, &rem.Name, &rem.Description, &rem.Priority, &rem.UserID, &rem.DateTime, &categories); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(categories, &rem.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return &rem, nil
}

func (r *Repository) CreateReminder(ctx context.Context, rem *Reminder) (*Reminder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reminders (id, name, description, priority, user_id, date_time) VALUES ($1, $2, $3, $4, $5, $6)`,
		rem.ID, rem.Name, rem.Description, int(rem.Priority), rem.UserID, rem.DateTime)
	if err != nil {
		return nil, err
	}
	if err := linkCategories(ctx, tx, rem.ID, rem.Categories); err != nil {
		return nil, err
	}

	created, err := scanReminder(tx.QueryRowContext(ctx, selectReminder+" WHERE r.id = $1", rem.ID))
	if err != nil {
		return nil, err
	}
	return created, tx.Commit()
}

func (r *Repository) GetReminder(ctx context.Context, id, userID string) (*Reminder, error) {
	return getReminder(ctx, r.db, id, userID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getReminder(ctx context.Context, q queryer, id, userID string) (*Reminder, error) {
	rem, err := scanReminder(q.QueryRowContext(ctx, selectReminder+" WHERE r.id = $1 AND r.user_id = $2", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reminder %q: %w", id, ErrReminderNotFound)
	}
	return rem, err
}

func (r *Repository) ListReminders(ctx context.Context, filter ListFilter) ([]Reminder, error) {
	q := selectReminder + `
	WHERE r.user_id = $1
	  AND ($2::text = '' OR EXISTS (SELECT 1 FROM reminder_category_links l
	                                WHERE l.reminder_id = r.id AND l.category_id = $2))
	ORDER BY r.date_time DESC, r.id DESC`
	rows, err := r.db.QueryContext(ctx, q, filter.UserID, filter.CategoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := []Reminder{}
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *rem)
	}
	return reminders, rows.Err()
}

// UpdateReminder applies upd in one transaction, so a failed category
// rewrite leaves the reminder untouched.
func (r *Repository) UpdateReminder(ctx context.Context, id, userID string, upd UpdateReminderRequest) (*Reminder, error) {
	if upd.Empty() {
		return nil, ErrEmptyUpdate
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var found string
	err = tx.QueryRowContext(ctx, "SELECT id FROM reminders WHERE id = $1 AND user_id = $2 FOR UPDATE", id, userID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reminder %q: %w", id, ErrReminderNotFound)
		}
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Priority != nil {
		set("priority", int(*upd.Priority))
	}
	if len(sets) > 0 {
		args = append(args, id)
		query := "UPDATE reminders SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}

	if upd.Categories != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reminder_category_links WHERE reminder_id = $1", id); err != nil {
			return nil, err
		}
		if err := linkCategories(ctx, tx, id, *upd.Categories); err != nil {
			return nil, err
		}
	}

	updated, err := getReminder(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}
	return updated, tx.Commit()
}

func (r *Repository) DeleteReminder(ctx context.Context, id, userID string) error {
	// Links go with the reminder (ON DELETE CASCADE).
	res, err := r.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Errorf("reminder %q: %w", id, ErrReminderNotFound))
}

func linkCategories(ctx context.Context, tx *sql.Tx, reminderID string, categoryIDs []string) error {
	for _, categoryID := range categoryIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO reminder_category_links (reminder_id, category_id) VALUES ($1, $2)", reminderID, categoryID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return fmt.Errorf("category %q: %w", categoryID, ErrUnknownCategory)
			}
			return err
		}
	}
	return nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
