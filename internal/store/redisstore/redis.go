// Package redisstore keeps channels and history in Redis. Messages of a
// channel live in a sorted set scored by created_at; members sharing a
// second fall back to lexicographic order, which UUIDv7 IDs make
// chronological.
package redisstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"homelab/internal/chat"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const (
	channelsKey = "chat:channels"
	maxRetries  = 10
)

func channelKey(id string) string         { return "chat:channel:" + id }
func slugKey(ownerID, slug string) string { return "chat:channel:slug:" + ownerID + ":" + slug }
func messageKey(id string) string         { return "chat:message:" + id }
func historyKey(channelID string) string  { return "chat:messages:" + channelID }

type Store struct {
	rdb *redis.Client
	now func() time.Time
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

func (s *Store) GetChannelByID(ctx context.Context, id string) (*chat.Channel, error) {
	return getChannel(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getChannel(ctx context.Context, c getter, id string) (*chat.Channel, error) {
	raw, err := c.Get(ctx, channelKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("channel %q: %w", id, chat.ErrChannelNotFound)
	}
	if err != nil {
		return nil, err
	}
	var ch chat.Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("decode channel %q: %w", id, err)
	}
	return &ch, nil
}

func (s *Store) CreateMessage(ctx context.Context, req chat.CreateMessage, authorID string) (*chat.Message, error) {
	n, err := s.rdb.Exists(ctx, channelKey(req.ChannelID)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("channel %q: %w", req.ChannelID, chat.ErrChannelNotFound)
	}

	msg := chat.NewMessage(req, authorID, s.now())
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messageKey(msg.ID), raw, 0)
		pipe.ZAdd(ctx, historyKey(msg.ChannelID), redis.Z{Score: float64(msg.CreatedAt), Member: msg.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return &msg, nil
}

func (s *Store) MessagesBefore(ctx context.Context, channelID, startingMessageID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}
	key := historyKey(channelID)
	var start int64
	if startingMessageID != "" {
		rank, err := s.rdb.ZRevRank(ctx, key, startingMessageID).Result()
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("message %q: %w", startingMessageID, chat.ErrMessageNotFound)
		}
		if err != nil {
			return nil, err
		}
		start = rank + 1
	}

	ids, err := s.rdb.ZRevRange(ctx, key, start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []chat.Message{}, nil
	}

	values, err := s.rdb.MGet(ctx, lo.Map(ids, func(id string, _ int) string { return messageKey(id) })...).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]chat.Message, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("message %q missing from history of %q", ids[i], channelID)
		}
		var m chat.Message
		if err := json.Unmarshal([]byte(str), &m); err != nil {
			return nil, fmt.Errorf("decode message %q: %w", ids[i], err)
		}
		messages = append(messages, m)
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) CreateChannel(ctx context.Context, req chat.CreateChannel, ownerID string) (*chat.Channel, error) {
	c := chat.NewChannel(req, ownerID, s.now())
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	claimed, err := s.rdb.SetNX(ctx, slugKey(ownerID, req.Slug), c.ID, 0).Result()
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("slug %q: %w", req.Slug, chat.ErrChannelExists)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, channelKey(c.ID), raw, 0)
		pipe.SAdd(ctx, channelsKey, c.ID)
		return nil
	})
	if err != nil {
		s.rdb.Del(context.WithoutCancel(ctx), slugKey(ownerID, req.Slug))
		return nil, fmt.Errorf("store channel: %w", err)
	}
	return &c, nil
}

func (s *Store) ListChannels(ctx context.Context, filter chat.ChannelFilter) ([]chat.Channel, error) {
	ids, err := s.rdb.SMembers(ctx, channelsKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.rdb.MGet(ctx, lo.Map(ids, func(id string, _ int) string { return channelKey(id) })...).Result()
	if err != nil {
		return nil, err
	}
	var channels []chat.Channel
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var c chat.Channel
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			return nil, fmt.Errorf("decode channel: %w", err)
		}
		if filter.Match(c) {
			channels = append(channels, c)
		}
	}
	slices.SortFunc(channels, func(a, b chat.Channel) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return channels, nil
}

func (s *Store) Subscribe(ctx context.Context, channelID, userID string) (*chat.Channel, error) {
	return s.updateChannel(ctx, channelID, func(c *chat.Channel) error {
		if !c.HasSubscriber(userID) {
			c.Subscribers = append(c.Subscribers, userID)
		}
		return nil
	})
}

func (s *Store) Unsubscribe(ctx context.Context, channelID, userID string) (*chat.Channel, error) {
	return s.updateChannel(ctx, channelID, func(c *chat.Channel) error {
		if c.OwnerID == userID || !c.HasSubscriber(userID) {
			return fmt.Errorf("channel %q: %w", channelID, chat.ErrNotSubscribed)
		}
		c.Subscribers = lo.Without(c.Subscribers, userID)
		return nil
	})
}

// updateChannel applies mutate under WATCH, retrying when another writer
// touched the channel in between.
func (s *Store) updateChannel(ctx context.Context, channelID string, mutate func(*chat.Channel) error) (*chat.Channel, error) {
	key := channelKey(channelID)
	var updated *chat.Channel

	txf := func(tx *redis.Tx) error {
		c, err := getChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err == nil {
			updated = c
		}
		return err
	}

	for range maxRetries {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("channel %q: too much contention", channelID)
}
