// Package postgres is the chat.Store backed by the relational database the
// users table lives in.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"homelab/internal/chat"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Subscribers come back as a JSON array ordered by join position.
const selectChannel = `
	SELECT c.id, c.slug, c.channel_type, c.name, c.owner_id, c.pinned_messages, c.created_at,
	       COALESCE((SELECT json_agg(s.user_id ORDER BY s.position)
	                 FROM chat_channel_subscribers s WHERE s.channel_id = c.id), '[]')
	FROM chat_channels c`

const selectMessage = `
	SELECT id, channel_id, author_id, created_at, updated_at, contents, reply_to, reactions, pinned
	FROM chat_messages`

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*chat.Channel, error) {
	var (
		c           chat.Channel
		name        sql.NullString
		pinned      []byte
		subscribers []byte
	)
	if err := row.Scan(&c.ID, &c.Slug, &c.Type, &name, &c.OwnerID, &pinned, &c.CreatedAt, &subscribers); err != nil {
		return nil, err
	}
	if name.Valid {
		c.Name = &name.String
	}
	if err := json.Unmarshal(pinned, &c.PinnedMessages); err != nil {
		return nil, fmt.Errorf("decode pinned messages: %w", err)
	}
	if err := json.Unmarshal(subscribers, &c.Subscribers); err != nil {
		return nil, fmt.Errorf("decode subscribers: %w", err)
	}
	return &c, nil
}

func scanMessage(row scanner) (chat.Message, error) {
	var (
		m         chat.Message
		replyTo   sql.NullString
		reactions []byte
	)
	if err := row.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.CreatedAt, &m.UpdatedAt, &m.Contents, &replyTo, &reactions, &m.Pinned); err != nil {
		return chat.Message{}, err
	}
	if replyTo.Valid {
		m.ReplyTo = &replyTo.String
	}
	if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
		return chat.Message{}, fmt.Errorf("decode reactions: %w", err)
	}
	return m, nil
}

func (s *Store) GetChannelByID(ctx context.Context, id string) (*chat.Channel, error) {
	c, err := scanChannel(s.db.QueryRowContext(ctx, selectChannel+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %q: %w", id, chat.ErrChannelNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) CreateMessage(ctx context.Context, req chat.CreateMessage, authorID string) (*chat.Message, error) {
	msg := chat.NewMessage(req, authorID, s.now())
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO chat_messages (id, channel_id, author_id, created_at, updated_at, contents, reply_to, reactions, pinned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.ChannelID, msg.AuthorID, msg.CreatedAt, msg.UpdatedAt,
		msg.Contents, msg.ReplyTo, string(reactions), msg.Pinned)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *Store) MessagesBefore(ctx context.Context, channelID, startingMessageID string, limit int) ([]chat.Message, error) {
	var rows *sql.Rows
	var err error

	if startingMessageID == "" {
		rows, err = s.db.QueryContext(ctx, selectMessage+`
			WHERE channel_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, channelID, limit)
	} else {
		var cursorAt int64
		err = s.db.QueryRowContext(ctx,
			`SELECT created_at FROM chat_messages WHERE id = $1 AND channel_id = $2`,
			startingMessageID, channelID).Scan(&cursorAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %q: %w", startingMessageID, chat.ErrMessageNotFound)
		}
		if err != nil {
			return nil, err
		}
		rows, err = s.db.QueryContext(ctx, selectMessage+`
			WHERE channel_id = $1 AND (created_at, id) < ($2::BIGINT, $3::TEXT)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, channelID, cursorAt, startingMessageID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []chat.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) CreateChannel(ctx context.Context, req chat.CreateChannel, ownerID string) (*chat.Channel, error) {
	c := chat.NewChannel(req, ownerID, s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_channels (id, slug, channel_type, name, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Slug, int(c.Type), c.Name, c.OwnerID, c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("slug %q: %w", req.Slug, chat.ErrChannelExists)
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_channel_subscribers (channel_id, user_id) VALUES ($1, $2)`, c.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("subscribe owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListChannels(ctx context.Context, filter chat.ChannelFilter) ([]chat.Channel, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Owned != nil || filter.Subscribed != nil {
		args = append(args, filter.UserID)
	}
	if filter.Owned != nil {
		if *filter.Owned {
			conds = append(conds, `c.owner_id = $1`)
		} else {
			conds = append(conds, `c.owner_id <> $1`)
		}
	}
	if filter.Subscribed != nil {
		exists := `EXISTS (SELECT 1 FROM chat_channel_subscribers s WHERE s.channel_id = c.id AND s.user_id = $1)`
		if !*filter.Subscribed {
			exists = "NOT " + exists
		}
		conds = append(conds, exists)
	}

	query := selectChannel
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY c.created_at, c.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []chat.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *c)
	}
	return channels, rows.Err()
}

func (s *Store) Subscribe(ctx context.Context, channelID, userID string) (*chat.Channel, error) {
	if _, err := s.GetChannelByID(ctx, channelID); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_channel_subscribers (channel_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return s.GetChannelByID(ctx, channelID)
}

func (s *Store) Unsubscribe(ctx context.Context, channelID, userID string) (*chat.Channel, error) {
	c, err := s.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID == userID {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotSubscribed)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_channel_subscribers WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("unsubscribe: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotSubscribed)
	}
	return s.GetChannelByID(ctx, channelID)
}
