// Package storetest holds the behaviour every chat.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"homelab/internal/chat"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// Run exercises newStore against the chat.Store contract. newStore must
// return an empty store that is cleaned up by t.
func Run(t *testing.T, newStore func(t *testing.T) chat.Store) {
	t.Run("CreateAndGetChannel", func(t *testing.T) { testCreateAndGetChannel(t, newStore(t)) })
	t.Run("DuplicateSlug", func(t *testing.T) { testDuplicateSlug(t, newStore(t)) })
	t.Run("ChannelNotFound", func(t *testing.T) { testChannelNotFound(t, newStore(t)) })
	t.Run("SubscribeKeepsOrder", func(t *testing.T) { testSubscribeKeepsOrder(t, newStore(t)) })
	t.Run("Unsubscribe", func(t *testing.T) { testUnsubscribe(t, newStore(t)) })
	t.Run("ListChannelsFilters", func(t *testing.T) { testListChannelsFilters(t, newStore(t)) })
	t.Run("CreateMessage", func(t *testing.T) { testCreateMessage(t, newStore(t)) })
	t.Run("MessagesBefore", func(t *testing.T) { testMessagesBefore(t, newStore(t)) })
	t.Run("MessagesBeforeUnknownCursor", func(t *testing.T) { testMessagesBeforeUnknownCursor(t, newStore(t)) })
}

func newUser() string { return uuid.NewString() }

func mustChannel(t *testing.T, s chat.Store, owner, slug string) *chat.Channel {
	t.Helper()
	c, err := s.CreateChannel(context.Background(), chat.CreateChannel{Slug: slug, Type: chat.Group}, owner)
	require.NoError(t, err)
	return c
}

func testCreateAndGetChannel(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	owner := newUser()
	name := "General"

	created, err := s.CreateChannel(ctx, chat.CreateChannel{Slug: "general", Type: chat.Group, Name: &name}, owner)
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal("general", created.Slug)
	req.Equal(chat.Group, created.Type)
	req.Equal(owner, created.OwnerID)
	req.Equal([]string{owner}, created.Subscribers)
	req.NotNil(created.PinnedMessages)
	req.NotZero(created.CreatedAt)

	fetched, err := s.GetChannelByID(ctx, created.ID)
	req.NoError(err)
	req.Equal(created, fetched)
}

func testDuplicateSlug(t *testing.T, s chat.Store) {
	req := require.New(t)
	owner := newUser()
	mustChannel(t, s, owner, "dup")

	_, err := s.CreateChannel(context.Background(), chat.CreateChannel{Slug: "dup", Type: chat.Group}, owner)
	req.ErrorIs(err, chat.ErrChannelExists)

	// Another owner may reuse the slug.
	mustChannel(t, s, newUser(), "dup")
}

func testChannelNotFound(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	missing := uuid.NewString()

	_, err := s.GetChannelByID(ctx, missing)
	req.ErrorIs(err, chat.ErrChannelNotFound)

	_, err = s.Subscribe(ctx, missing, newUser())
	req.ErrorIs(err, chat.ErrChannelNotFound)

	_, err = s.Unsubscribe(ctx, missing, newUser())
	req.ErrorIs(err, chat.ErrChannelNotFound)
}

func testSubscribeKeepsOrder(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	owner, bob, clara := newUser(), newUser(), newUser()
	c := mustChannel(t, s, owner, "ordered")

	_, err := s.Subscribe(ctx, c.ID, bob)
	req.NoError(err)
	updated, err := s.Subscribe(ctx, c.ID, clara)
	req.NoError(err)
	req.Equal([]string{owner, bob, clara}, updated.Subscribers)

	// Subscribing twice changes nothing.
	again, err := s.Subscribe(ctx, c.ID, bob)
	req.NoError(err)
	req.Equal([]string{owner, bob, clara}, again.Subscribers)
}

func testUnsubscribe(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	owner, bob := newUser(), newUser()
	c := mustChannel(t, s, owner, "leaving")

	_, err := s.Unsubscribe(ctx, c.ID, bob)
	req.ErrorIs(err, chat.ErrNotSubscribed)

	_, err = s.Unsubscribe(ctx, c.ID, owner)
	req.ErrorIs(err, chat.ErrNotSubscribed)

	_, err = s.Subscribe(ctx, c.ID, bob)
	req.NoError(err)
	left, err := s.Unsubscribe(ctx, c.ID, bob)
	req.NoError(err)
	req.Equal([]string{owner}, left.Subscribers)

	fetched, err := s.GetChannelByID(ctx, c.ID)
	req.NoError(err)
	req.False(fetched.HasSubscriber(bob))
}

func testListChannelsFilters(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	alice, bob := newUser(), newUser()
	aliceOwned := mustChannel(t, s, alice, "alice-owned")
	bobOwned := mustChannel(t, s, bob, "bob-owned")
	bobShared := mustChannel(t, s, bob, "bob-shared")
	_, err := s.Subscribe(ctx, bobShared.ID, alice)
	req.NoError(err)

	ids := func(filter chat.ChannelFilter) []string {
		channels, err := s.ListChannels(ctx, filter)
		req.NoError(err)
		return lo.Map(channels, func(c chat.Channel, _ int) string { return c.ID })
	}

	req.ElementsMatch([]string{aliceOwned.ID, bobOwned.ID, bobShared.ID}, ids(chat.ChannelFilter{UserID: alice}))
	req.ElementsMatch([]string{aliceOwned.ID}, ids(chat.ChannelFilter{UserID: alice, Owned: lo.ToPtr(true)}))
	req.ElementsMatch([]string{bobOwned.ID, bobShared.ID}, ids(chat.ChannelFilter{UserID: alice, Owned: lo.ToPtr(false)}))
	req.ElementsMatch([]string{aliceOwned.ID, bobShared.ID}, ids(chat.ChannelFilter{UserID: alice, Subscribed: lo.ToPtr(true)}))
	req.ElementsMatch([]string{bobOwned.ID}, ids(chat.ChannelFilter{UserID: alice, Subscribed: lo.ToPtr(false)}))
	req.ElementsMatch([]string{bobShared.ID}, ids(chat.ChannelFilter{UserID: alice, Owned: lo.ToPtr(false), Subscribed: lo.ToPtr(true)}))
}

func testCreateMessage(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	owner := newUser()
	c := mustChannel(t, s, owner, "messages")
	parent := "some-message"

	msg, err := s.CreateMessage(ctx, chat.CreateMessage{ChannelID: c.ID, Contents: "hi", ReplyTo: &parent}, owner)
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal(c.ID, msg.ChannelID)
	req.Equal(owner, msg.AuthorID)
	req.Equal("hi", msg.Contents)
	req.Equal(&parent, msg.ReplyTo)
	req.Equal(msg.CreatedAt, msg.UpdatedAt)
	req.NotNil(msg.Reactions)
	req.Empty(msg.Reactions)
	req.False(msg.Pinned)

	page, err := s.MessagesBefore(ctx, c.ID, "", 10)
	req.NoError(err)
	req.Equal([]chat.Message{*msg}, page)
}

func testMessagesBefore(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	owner := newUser()
	c := mustChannel(t, s, owner, "history")
	other := mustChannel(t, s, owner, "elsewhere")

	var sent []chat.Message
	for i := range 7 {
		msg, err := s.CreateMessage(ctx, chat.CreateMessage{ChannelID: c.ID, Contents: fmt.Sprintf("m%d", i)}, owner)
		req.NoError(err)
		sent = append(sent, *msg)
	}
	_, err := s.CreateMessage(ctx, chat.CreateMessage{ChannelID: other.ID, Contents: "noise"}, owner)
	req.NoError(err)

	contents := func(msgs []chat.Message) []string {
		return lo.Map(msgs, func(m chat.Message, _ int) string { return m.Contents })
	}

	// Newest page, oldest first
	page, err := s.MessagesBefore(ctx, c.ID, "", 3)
	req.NoError(err)
	req.Equal([]string{"m4", "m5", "m6"}, contents(page))

	// Strictly older than the cursor
	page, err = s.MessagesBefore(ctx, c.ID, page[0].ID, 3)
	req.NoError(err)
	req.Equal([]string{"m1", "m2", "m3"}, contents(page))

	// Short final page
	page, err = s.MessagesBefore(ctx, c.ID, page[0].ID, 3)
	req.NoError(err)
	req.Equal([]string{"m0"}, contents(page))

	// Nothing older than the first message
	page, err = s.MessagesBefore(ctx, c.ID, sent[0].ID, 3)
	req.NoError(err)
	req.Empty(page)

	// Empty channel
	empty := mustChannel(t, s, owner, "empty")
	page, err = s.MessagesBefore(ctx, empty.ID, "", 3)
	req.NoError(err)
	req.Empty(page)
}

func testMessagesBeforeUnknownCursor(t *testing.T, s chat.Store) {
	req := require.New(t)
	ctx := context.Background()
	owner := newUser()
	c := mustChannel(t, s, owner, "cursor")
	other := mustChannel(t, s, owner, "cursor-other")

	foreign, err := s.CreateMessage(ctx, chat.CreateMessage{ChannelID: other.ID, Contents: "x"}, owner)
	req.NoError(err)

	_, err = s.MessagesBefore(ctx, c.ID, uuid.NewString(), 5)
	req.ErrorIs(err, chat.ErrMessageNotFound)

	// A message from another channel is not a valid cursor here.
	_, err = s.MessagesBefore(ctx, c.ID, foreign.ID, 5)
	req.ErrorIs(err, chat.ErrMessageNotFound)
}
