package badgerstore

import (
	"context"
	"homelab/internal/chat"
	"homelab/internal/store/storetest"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, slog.Default())
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) chat.Store { return openStore(t) })
}

func Test_Messages_Across_Seconds_Stay_Ordered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openStore(t)
	c, err := s.CreateChannel(ctx, chat.CreateChannel{Slug: "clock", Type: chat.Group}, "alice")
	req.NoError(err)

	// Given messages written out of wall-clock order
	base := time.Unix(1_700_000_000, 0)
	for i, at := range []time.Time{base.Add(9 * time.Second), base, base.Add(100 * time.Second)} {
		s.now = func() time.Time { return at }
		_, err := s.CreateMessage(ctx, chat.CreateMessage{ChannelID: c.ID, Contents: string(rune('a' + i))}, "alice")
		req.NoError(err)
	}

	// Then history follows created_at
	page, err := s.MessagesBefore(ctx, c.ID, "", 10)
	req.NoError(err)
	req.Len(page, 3)
	req.Equal("b", page[0].Contents)
	req.Equal("a", page[1].Contents)
	req.Equal("c", page[2].Contents)
}
