//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package chat

import (
	"context"
	"errors"
)

var (
	ErrChannelNotFound = errors.New("chat channel not found")
	ErrMessageNotFound = errors.New("chat message not found")
	ErrChannelExists   = errors.New("chat channel already exists")
	ErrNotSubscribed   = errors.New("user cannot leave this chat channel")
)

// Store persists channels and messages. Implementations live under
// internal/store and translate their driver errors into the sentinels above.
type Store interface {
	GetChannelByID(ctx context.Context, id string) (*Channel, error)
	CreateMessage(ctx context.Context, req CreateMessage, authorID string) (*Message, error)
	// MessagesBefore returns up to limit messages of the channel strictly
	// older than startingMessageID in (created_at, id) order, oldest first.
	// An empty startingMessageID starts from the newest message.
	MessagesBefore(ctx context.Context, channelID, startingMessageID string, limit int) ([]Message, error)

	CreateChannel(ctx context.Context, req CreateChannel, ownerID string) (*Channel, error)
	ListChannels(ctx context.Context, filter ChannelFilter) ([]Channel, error)
	Subscribe(ctx context.Context, channelID, userID string) (*Channel, error)
	Unsubscribe(ctx context.Context, channelID, userID string) (*Channel, error)
}
