package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ---------------------------------------------
// ⚡ Socket Packets
// ---------------------------------------------
//
// Every frame is a JSON object {"type": <name>, "data": <payload>}.

const (
	TypeCreateMessage   = "CreateMessage"
	TypeGetChatState    = "GetChatState"
	TypeSendChatMessage = "SendChatMessage"
	TypeSendAck         = "SendAck"
	TypeSendChatState   = "SendChatState"
)

var (
	ErrUnknownPacket = errors.New("unknown packet type")
	ErrEmptyPacket   = errors.New("packet has no data")
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Request is a packet sent by a client. It is one of CreateMessage or
// GetChatState.
type Request interface {
	requestType() string
}

// CreateMessage asks to post Contents into a channel. An unknown or empty
// ChannelID is answered as a missing channel; empty Contents are allowed.
type CreateMessage struct {
	ChannelID string  `json:"channel_id"`
	Contents  string  `json:"contents"`
	ReplyTo   *string `json:"reply_to"`
}

// GetChatState asks for a page of history older than StartingMessage.
type GetChatState struct {
	ChannelID       string `json:"channel_id"`
	MessageCount    int    `json:"message_count"`
	StartingMessage string `json:"starting_message"`
}

func (CreateMessage) requestType() string { return TypeCreateMessage }
func (GetChatState) requestType() string  { return TypeGetChatState }

// DecodeRequest parses one inbound frame.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: %q", ErrEmptyPacket, env.Type)
	}

	switch env.Type {
	case TypeCreateMessage:
		var req CreateMessage
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return req, nil
	case TypeGetChatState:
		var req GetChatState
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return req, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacket, env.Type)
	}
}

// EncodeRequest is the client side of DecodeRequest.
func EncodeRequest(req Request) ([]byte, error) {
	return encode(req.requestType(), req)
}

// Response is a packet sent by the server. It is one of SendChatMessage,
// SendAck or SendChatState.
type Response interface {
	responseType() string
	payload() any
}

type SendChatMessage struct {
	Message Message
}

type SendAck struct {
	Ack Ack
}

type SendChatState struct {
	State ChatState
}

// ChatState is one page of channel history, oldest message first.
type ChatState struct {
	ChannelID  string    `json:"channel_id"`
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor"`
}

func (SendChatMessage) responseType() string { return TypeSendChatMessage }
func (SendAck) responseType() string         { return TypeSendAck }
func (SendChatState) responseType() string   { return TypeSendChatState }

func (r SendChatMessage) payload() any { return r.Message }
func (r SendAck) payload() any         { return r.Ack }
func (r SendChatState) payload() any   { return r.State }

// EncodeResponse serializes a response into one text frame.
func EncodeResponse(resp Response) ([]byte, error) {
	return encode(resp.responseType(), resp.payload())
}

// DecodeResponse is the client side of EncodeResponse.
func DecodeResponse(data []byte) (Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeSendChatMessage:
		var msg Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return SendChatMessage{Message: msg}, nil
	case TypeSendAck:
		var ack Ack
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return SendAck{Ack: ack}, nil
	case TypeSendChatState:
		var state ChatState
		if err := json.Unmarshal(env.Data, &state); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return SendChatState{State: state}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacket, env.Type)
	}
}

func encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(envelope{Type: typ, Data: raw})
}

// Ack answers a client request. Codes follow the REST layer's HTTP ranges.
type Ack struct {
	StatusCode int    `json:"status_code"`
	Msg        string `json:"msg"`
}

func (a Ack) IsError() bool {
	return a.StatusCode >= 400 && a.StatusCode < 500
}

const (
	msgChannelNotFound = "Chat channel does not exist"
	msgNotSubscribed   = "You are not in this chat channel"
	msgCreateFailed    = "Failed to create a chat message with an unknown reason"
	msgCursorNotFound  = "Starting message does not exist"
	msgStateFailed     = "Failed to load chat state with an unknown reason"
)
