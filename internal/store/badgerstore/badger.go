// Package badgerstore is an embedded chat.Store on top of Badger, for a
// single-node deployment without a database server.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"homelab/internal/chat"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// Key layout:
//
//	channel:{id}                          channel JSON
//	channel-slug:{owner}:{slug}           channel id
//	msg:{channel}:{created_at}:{id}       message JSON, created_at padded to 19 digits
//	msgidx:{id}                           key of the message entry
//
// The padded timestamp followed by the UUIDv7 keeps a channel's history in
// (created_at, id) order under a plain prefix scan.
const (
	channelPrefix = "channel:"
	maxRetries    = 10
)

func channelKey(id string) []byte         { return []byte(channelPrefix + id) }
func slugKey(ownerID, slug string) []byte { return []byte("channel-slug:" + ownerID + ":" + slug) }
func historyPrefix(channelID string) []byte {
	return []byte("msg:" + channelID + ":")
}
func messageKey(m chat.Message) []byte {
	return fmt.Appendf(historyPrefix(m.ChannelID), "%019d:%s", m.CreatedAt, m.ID)
}
func indexKey(id string) []byte { return []byte("msgidx:" + id) }

type Store struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func New(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log, now: time.Now}
}

func (s *Store) GetChannelByID(_ context.Context, id string) (*chat.Channel, error) {
	var c *chat.Channel
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = getChannel(txn, id)
		return err
	})
	return c, err
}

func getChannel(txn *badger.Txn, id string) (*chat.Channel, error) {
	item, err := txn.Get(channelKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("channel %q: %w", id, chat.ErrChannelNotFound)
	}
	if err != nil {
		return nil, err
	}
	var c chat.Channel
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("decode channel %q: %w", id, err)
	}
	return &c, nil
}

func putChannel(txn *badger.Txn, c *chat.Channel) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return txn.Set(channelKey(c.ID), raw)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Badger transaction conflict, retrying")
	}
	return err
}

func (s *Store) CreateMessage(_ context.Context, req chat.CreateMessage, authorID string) (*chat.Message, error) {
	msg := chat.NewMessage(req, authorID, s.now())
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	key := messageKey(msg)

	err = s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(channelKey(req.ChannelID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("channel %q: %w", req.ChannelID, chat.ErrChannelNotFound)
			}
			return err
		}
		if err := txn.Set(key, raw); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.ID), key)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessagesBefore walks the channel's history backwards from the cursor.
func (s *Store) MessagesBefore(_ context.Context, channelID, startingMessageID string, limit int) ([]chat.Message, error) {
	prefix := historyPrefix(channelID)
	messages := []chat.Message{}

	err := s.db.View(func(txn *badger.Txn) error {
		seekKey := append(slices.Clone(prefix), 0xff)
		if startingMessageID != "" {
			item, err := txn.Get(indexKey(startingMessageID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("message %q: %w", startingMessageID, chat.ErrMessageNotFound)
			}
			if err != nil {
				return err
			}
			seekKey, err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !bytes.HasPrefix(seekKey, prefix) {
				return fmt.Errorf("message %q: %w", startingMessageID, chat.ErrMessageNotFound)
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekKey)
		if startingMessageID != "" && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}
		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			var m chat.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) CreateChannel(_ context.Context, req chat.CreateChannel, ownerID string) (*chat.Channel, error) {
	c := chat.NewChannel(req, ownerID, s.now())
	err := s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(slugKey(ownerID, req.Slug))
		if err == nil {
			return fmt.Errorf("slug %q: %w", req.Slug, chat.ErrChannelExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(slugKey(ownerID, req.Slug), []byte(c.ID)); err != nil {
			return err
		}
		return putChannel(txn, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChannels scans every channel; IDs are UUIDv7 so key order is
// creation order.
func (s *Store) ListChannels(_ context.Context, filter chat.ChannelFilter) ([]chat.Channel, error) {
	var channels []chat.Channel
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(channelPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var c chat.Channel
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			})
			if err != nil {
				return err
			}
			channels = append(channels, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Filter(channels, func(c chat.Channel, _ int) bool { return filter.Match(c) }), nil
}

func (s *Store) Subscribe(_ context.Context, channelID, userID string) (*chat.Channel, error) {
	return s.updateChannel(channelID, func(c *chat.Channel) error {
		if !c.HasSubscriber(userID) {
			c.Subscribers = append(c.Subscribers, userID)
		}
		return nil
	})
}

func (s *Store) Unsubscribe(_ context.Context, channelID, userID string) (*chat.Channel, error) {
	return s.updateChannel(channelID, func(c *chat.Channel) error {
		if c.OwnerID == userID || !c.HasSubscriber(userID) {
			return fmt.Errorf("channel %q: %w", channelID, chat.ErrNotSubscribed)
		}
		c.Subscribers = lo.Without(c.Subscribers, userID)
		return nil
	})
}

func (s *Store) updateChannel(channelID string, mutate func(*chat.Channel) error) (*chat.Channel, error) {
	var updated *chat.Channel
	err := s.update(func(txn *badger.Txn) error {
		c, err := getChannel(txn, channelID)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		updated = c
		return putChannel(txn, c)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
