package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type ChannelType int

const (
	DirectMessage ChannelType = iota
	Group
	Server // placeholder for a larger group chat
)

func (t ChannelType) String() string {
	switch t {
	case DirectMessage:
		return "DirectMessage"
	case Group:
		return "Group"
	case Server:
		return "Server"
	default:
		return "ChannelType(" + strconv.Itoa(int(t)) + ")"
	}
}

func (t ChannelType) Valid() bool {
	return t >= DirectMessage && t <= Server
}

func (t ChannelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts both the numeric form sent by clients on creation
// and the name form returned by the API.
func (t *ChannelType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = ChannelType(n)
		if !t.Valid() {
			return fmt.Errorf("unsupported channel type %d", n)
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("channel type must be a number or a name: %w", err)
	}
	switch s {
	case "DirectMessage":
		*t = DirectMessage
	case "Group":
		*t = Group
	case "Server":
		*t = Server
	default:
		return fmt.Errorf("unsupported channel type %q", s)
	}
	return nil
}

type Channel struct {
	ID             string      `json:"id"`
	Slug           string      `json:"slug"`
	Type           ChannelType `json:"channel_type"`
	Name           *string     `json:"name"`
	PinnedMessages []string    `json:"pinned_messages"`
	Subscribers    []string    `json:"subscribers"` // user IDs, insertion order
	OwnerID        string      `json:"owner_id"`
	CreatedAt      int64       `json:"created_at"`
}

func (c *Channel) HasSubscriber(userID string) bool {
	return lo.Contains(c.Subscribers, userID)
}

type Emoji struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Reaction struct {
	Count int64 `json:"count"`
	Emoji Emoji `json:"emoji"`
}

type Message struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	AuthorID  string     `json:"author_id"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
	Contents  string     `json:"contents"`
	ReplyTo   *string    `json:"reply_to"`
	Reactions []Reaction `json:"reactions"`
	Pinned    bool       `json:"pinned"`
}

// NewMessage stamps a freshly created message. IDs are UUIDv7 so that, for
// messages sharing a created_at second, ordering by ID is still chronological.
func NewMessage(req CreateMessage, authorID string, now time.Time) Message {
	ts := now.Unix()
	return Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChannelID: req.ChannelID,
		AuthorID:  authorID,
		CreatedAt: ts,
		UpdatedAt: ts,
		Contents:  req.Contents,
		ReplyTo:   req.ReplyTo,
		Reactions: []Reaction{},
		Pinned:    false,
	}
}

// NewChannel builds a channel owned and subscribed to by ownerID.
func NewChannel(req CreateChannel, ownerID string, now time.Time) Channel {
	return Channel{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Slug:           req.Slug,
		Type:           req.Type,
		Name:           req.Name,
		PinnedMessages: []string{},
		Subscribers:    []string{ownerID},
		OwnerID:        ownerID,
		CreatedAt:      now.Unix(),
	}
}

// Before reports whether m sorts strictly before other in (created_at, id) order.
func (m Message) Before(other Message) bool {
	if m.CreatedAt != other.CreatedAt {
		return m.CreatedAt < other.CreatedAt
	}
	return m.ID < other.ID
}

// CreateChannel is the REST payload for a new channel.
type CreateChannel struct {
	Slug string      `json:"slug" validate:"required,max=64"`
	Type ChannelType `json:"channel_type"`
	Name *string     `json:"name" validate:"omitempty,max=100"`
}

// ChannelFilter narrows ListChannels relative to UserID. A nil field means
// "don't care".
type ChannelFilter struct {
	UserID     string
	Owned      *bool
	Subscribed *bool
}

func (f ChannelFilter) Match(c Channel) bool {
	if f.Owned != nil && (c.OwnerID == f.UserID) != *f.Owned {
		return false
	}
	if f.Subscribed != nil && c.HasSubscriber(f.UserID) != *f.Subscribed {
		return false
	}
	return true
}
