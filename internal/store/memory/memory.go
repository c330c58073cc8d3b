// Package memory is a process-local chat.Store, used for development
// (CHAT_STORE=memory) and for tests that exercise the socket layer.
package memory

import (
	"context"
	"fmt"
	"homelab/internal/chat"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Store struct {
	mu       sync.RWMutex
	channels map[string]*chat.Channel
	order    []string                  // channel IDs in creation order
	messages map[string][]chat.Message // per channel, ascending (created_at, id)
	byID     map[string]chat.Message
	now      func() time.Time

	// FailCreateMessage, when set, is returned by CreateMessage.
	FailCreateMessage error
}

func New() *Store {
	return &Store{
		channels: make(map[string]*chat.Channel),
		messages: make(map[string][]chat.Message),
		byID:     make(map[string]chat.Message),
		now:      time.Now,
	}
}

func (s *Store) GetChannelByID(_ context.Context, id string) (*chat.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", id, chat.ErrChannelNotFound)
	}
	return clone(c), nil
}

func (s *Store) CreateMessage(_ context.Context, req chat.CreateMessage, authorID string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreateMessage != nil {
		return nil, s.FailCreateMessage
	}
	if _, ok := s.channels[req.ChannelID]; !ok {
		return nil, fmt.Errorf("channel %q: %w", req.ChannelID, chat.ErrChannelNotFound)
	}

	msg := chat.NewMessage(req, authorID, s.now())
	list := s.messages[req.ChannelID]
	i, _ := slices.BinarySearchFunc(list, msg, compareMessages)
	s.messages[req.ChannelID] = slices.Insert(list, i, msg)
	s.byID[msg.ID] = msg
	return &msg, nil
}

func (s *Store) MessagesBefore(_ context.Context, channelID, startingMessageID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.messages[channelID]
	end := len(list)
	if startingMessageID != "" {
		cursor, ok := s.byID[startingMessageID]
		if !ok || cursor.ChannelID != channelID {
			return nil, fmt.Errorf("message %q: %w", startingMessageID, chat.ErrMessageNotFound)
		}
		end, _ = slices.BinarySearchFunc(list, cursor, compareMessages)
	}
	start := max(0, end-limit)
	return slices.Clone(list[start:end]), nil
}

func (s *Store) CreateChannel(_ context.Context, req chat.CreateChannel, ownerID string) (*chat.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.channels {
		if c.OwnerID == ownerID && c.Slug == req.Slug {
			return nil, fmt.Errorf("slug %q: %w", req.Slug, chat.ErrChannelExists)
		}
	}

	c := chat.NewChannel(req, ownerID, s.now())
	s.channels[c.ID] = &c
	s.order = append(s.order, c.ID)
	return clone(&c), nil
}

func (s *Store) ListChannels(_ context.Context, filter chat.ChannelFilter) ([]chat.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := lo.FilterMap(s.order, func(id string, _ int) (chat.Channel, bool) {
		c := s.channels[id]
		return *clone(c), filter.Match(*c)
	})
	return channels, nil
}

func (s *Store) Subscribe(_ context.Context, channelID, userID string) (*chat.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrChannelNotFound)
	}
	if !c.HasSubscriber(userID) {
		c.Subscribers = append(c.Subscribers, userID)
	}
	return clone(c), nil
}

func (s *Store) Unsubscribe(_ context.Context, channelID, userID string) (*chat.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrChannelNotFound)
	}
	if c.OwnerID == userID || !c.HasSubscriber(userID) {
		return nil, fmt.Errorf("channel %q: %w", channelID, chat.ErrNotSubscribed)
	}
	c.Subscribers = lo.Without(c.Subscribers, userID)
	return clone(c), nil
}

func compareMessages(a, b chat.Message) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	default:
		return 0
	}
}

func clone(c *chat.Channel) *chat.Channel {
	out := *c
	out.Subscribers = slices.Clone(c.Subscribers)
	out.PinnedMessages = slices.Clone(c.PinnedMessages)
	return &out
}
