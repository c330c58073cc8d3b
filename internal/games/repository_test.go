package games

import (
	"context"
	"homelab/internal/db"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs against a disposable database named by TEST_DB_DSN.
func TestRepository_Connections(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	req := require.New(t)
	ctx := context.Background()

	database, err := db.NewDatabase(dsn)
	req.NoError(err)
	t.Cleanup(func() { _ = database.Close() })
	req.NoError(database.AutoMigrate())
	_, err = database.Conn.ExecContext(ctx, `TRUNCATE game_connections`)
	req.NoError(err)

	s := NewService(NewRepository(database.Conn))

	g, err := s.CreateConnections(ctx, "alice", puzzle("Stored Mix"))
	req.NoError(err)
	_, err = s.CreateConnections(ctx, "bob", puzzle("stored mix"))
	req.ErrorIs(err, ErrGameExists)

	stored, err := NewRepository(database.Conn).GetConnectionsBySlug(ctx, "stored-mix")
	req.NoError(err)
	req.Equal(g, stored)

	mine, err := s.ListConnections(ctx, "alice", true)
	req.NoError(err)
	req.Equal([]Summary{g.Summary()}, mine)
	others, err := s.ListConnections(ctx, "alice", false)
	req.NoError(err)
	req.Empty(others)

	res, err := s.TrySolve(ctx, "stored-mix", []string{"mars", "venus", "earth", "saturn"})
	req.NoError(err)
	req.Equal("Planets", *res.RowName)

	_, err = s.Play(ctx, "missing")
	req.ErrorIs(err, ErrGameNotFound)
}
