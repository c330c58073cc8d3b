package postgres

import (
	"context"
	"homelab/internal/chat"
	"homelab/internal/db"
	"homelab/internal/store/storetest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs against a disposable database named by TEST_DB_DSN; the chat tables
// are truncated before every case.
func TestStore(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	database, err := db.NewDatabase(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.AutoMigrate())

	storetest.Run(t, func(t *testing.T) chat.Store {
		_, err := database.Conn.ExecContext(context.Background(),
			`TRUNCATE chat_messages, chat_channel_subscribers, chat_channels`)
		require.NoError(t, err)
		return New(database.Conn)
	})
}
