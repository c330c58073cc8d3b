package games

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type Store interface {
	CreateConnections(ctx context.Context, g *Connections) (*Connections, error)
	GetConnectionsBySlug(ctx context.Context, slug string) (*Connections, error)
	// ListConnections returns authorID's puzzles when mine is set, and
	// everyone else's otherwise, newest first.
	ListConnections(ctx context.Context, authorID string, mine bool) ([]Connections, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateConnections(ctx context.Context, g *Connections) (*Connections, error) {
	categories, err := json.Marshal(g.Categories)
	if err != nil {
		return nil, fmt.Errorf("encode categories: %w", err)
	}

	query := `INSERT INTO game_connections (id, slug, puzzle_name, author_id, categories, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, g.ID, g.Slug, g.PuzzleName, g.AuthorID, categories, g.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("slug %q: %w", g.Slug, ErrGameExists)
		}
		return nil, err
	}
	return g, nil
}

const selectConnections = `SELECT id, slug, puzzle_name, author_id, categories, created_at FROM game_connections`

type scanner interface {
	Scan(dest ...any) error
}

func scanConnections(row scanner) (*Connections, error) {
	var (
		g          Connections
		categories []byte
	)
	if err := row.Scan(&g.ID, &g.Slug, &g.PuzzleName, &g.AuthorID, &categories, &g.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(categories, &g.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return &g, nil
}

func (r *Repository) GetConnectionsBySlug(ctx context.Context, slug string) (*Connections, error) {
	g, err := scanConnections(r.db.QueryRowContext(ctx, selectConnections+" WHERE slug = $1", slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slug %q: %w", slug, ErrGameNotFound)
	}
	return g, err
}

func (r *Repository) ListConnections(ctx context.Context, authorID string, mine bool) ([]Connections, error) {
	op := "<>"
	if mine {
		op = "="
	}
	rows, err := r.db.QueryContext(ctx, selectConnections+" WHERE author_id "+op+" $1 ORDER BY created_at DESC, id DESC", authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := []Connections{}
	for rows.Next() {
		g, err := scanConnections(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}
