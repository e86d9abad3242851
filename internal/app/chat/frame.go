/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the wire frame format. Every unit exchanged over a websocket
connection is one JSON object {type, payload}; the set of frame types is closed
and payloads are decoded per type so unknown or malformed frames can be dropped
without touching the connection.
*/
package chat

import (
	"encoding/json"
	"fmt"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
)

// FrameType enumerates the closed set of recognized frame types.
type FrameType string

const (
	// Client to server.
	TypeAuth         FrameType = "auth"
	TypeMessage      FrameType = "message"
	TypeStatusChange FrameType = "status_change"

	// Server to client.
	TypeAuthSuccess    FrameType = "auth_success"
	TypePong           FrameType = "pong"
	TypeNewMessage     FrameType = "new_message"
	TypeUserStatus     FrameType = "user_status"
	TypeMessageEdited  FrameType = "message_edited"
	TypeMessageDeleted FrameType = "message_deleted"

	// Either direction.
	TypePing   FrameType = "ping"
	TypeTyping FrameType = "typing"
)

// Frame is one wire message. Payload stays raw until the type-specific
// handler decodes it, so a bad payload never takes down the dispatch loop.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame builds a Frame with the payload marshaled in place.
func NewFrame(frameType FrameType, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}

	return Frame{Type: frameType, Payload: raw}, nil
}

// Encode serializes the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// AuthPayload is the client's in-band authentication request.
type AuthPayload struct {
	UserID int64 `json:"userId"`
}

// AuthSuccessPayload confirms a successful authentication.
type AuthSuccessPayload struct {
	UserID int64 `json:"userId"`
}

// MessagePayload is a client request to send a chat message.
type MessagePayload struct {
	ConversationID int64              `json:"conversationId"`
	Content        string             `json:"content"`
	Attachments    []store.Attachment `json:"attachments,omitempty"`
	ReplyToID      *int64             `json:"replyToId,omitempty"`
}

// TypingPayload carries typing start/stop events. UserID is filled by the
// server on the outbound leg; inbound frames identify the typist by session.
type TypingPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId,omitempty"`
	IsTyping       bool  `json:"isTyping"`
}

// StatusChangePayload is a client request to change availability.
type StatusChangePayload struct {
	Status string `json:"status"`
}

// UserStatusPayload announces another user's availability change.
type UserStatusPayload struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

// MessageDeletedPayload announces a message deletion.
type MessageDeletedPayload struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}
