package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// IDs are UUIDv7 strings compared byte-wise, so that ORDER BY id follows
// creation order regardless of the database locale.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT COLLATE "C" PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,

	`CREATE TABLE IF NOT EXISTS chat_channels (
            id TEXT COLLATE "C" PRIMARY KEY,
            slug TEXT NOT NULL,
            channel_type SMALLINT NOT NULL,
            name TEXT,
            owner_id TEXT NOT NULL,
            pinned_messages JSONB NOT NULL DEFAULT '[]',
            created_at BIGINT NOT NULL,
            UNIQUE (owner_id, slug)
        )`,

	`CREATE TABLE IF NOT EXISTS chat_channel_subscribers (
            channel_id TEXT REFERENCES chat_channels(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            position BIGSERIAL,
            PRIMARY KEY (channel_id, user_id)
        )`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
            id TEXT COLLATE "C" PRIMARY KEY,
            channel_id TEXT NOT NULL REFERENCES chat_channels(id) ON DELETE CASCADE,
            author_id TEXT NOT NULL,
            created_at BIGINT NOT NULL,
            updated_at BIGINT NOT NULL,
            contents TEXT NOT NULL,
            reply_to TEXT,
            reactions JSONB NOT NULL DEFAULT '[]',
            pinned BOOLEAN NOT NULL DEFAULT FALSE
        )`,

	`CREATE INDEX IF NOT EXISTS chat_messages_channel_created_idx
            ON chat_messages (channel_id, created_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS reminder_categories (
            id TEXT COLLATE "C" PRIMARY KEY,
            slug TEXT NOT NULL,
            name TEXT NOT NULL,
            user_id TEXT NOT NULL,
            UNIQUE (user_id, slug)
        )`,

	`CREATE TABLE IF NOT EXISTS reminders (
            id TEXT COLLATE "C" PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            priority SMALLINT NOT NULL,
            user_id TEXT NOT NULL,
            date_time BIGINT NOT NULL
        )`,

	// A category cannot be dropped while a reminder still links to it.
	`CREATE TABLE IF NOT EXISTS reminder_category_links (
            reminder_id TEXT REFERENCES reminders(id) ON DELETE CASCADE,
            category_id TEXT REFERENCES reminder_categories(id) ON DELETE RESTRICT,
            PRIMARY KEY (reminder_id, category_id)
        )`,

	`CREATE TABLE IF NOT EXISTS game_connections (
            id TEXT COLLATE "C" PRIMARY KEY,
            slug TEXT UNIQUE NOT NULL,
            puzzle_name TEXT NOT NULL,
            author_id TEXT NOT NULL,
            categories JSONB NOT NULL,
            created_at BIGINT NOT NULL
        )`,

	`CREATE TABLE IF NOT EXISTS request_logs (
            id TEXT COLLATE "C" PRIMARY KEY,
            method TEXT NOT NULL,
            uri TEXT NOT NULL,
            user_id TEXT NOT NULL,
            date_time BIGINT NOT NULL
        )`,

	`CREATE INDEX IF NOT EXISTS request_logs_user_idx
            ON request_logs (user_id, date_time DESC, id DESC)`,
}

func (d *Database) AutoMigrate() error {
	for _, query := range schema {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
