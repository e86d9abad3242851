package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence contract used by the HTTP handlers.
// The realtime core depends only on the narrow subset it needs (see the chat
// package), which this interface is a superset of.
type Store interface {
	// Users
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	GetAllUsers(ctx context.Context) ([]UserBasicInfo, error)
	UpdateUserAvailability(ctx context.Context, id int64, availability string) error

	// Conversations
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	GetUserConversations(ctx context.Context, userID int64) ([]Conversation, error)
	CreateConversation(ctx context.Context, c NewConversation) (*Conversation, error)
	GetConversationMembers(ctx context.Context, conversationID int64) ([]ConversationMember, error)
	AddConversationMember(ctx context.Context, m NewConversationMember) (*ConversationMember, error)
	RemoveConversationMember(ctx context.Context, conversationID, userID int64) error
	GetDirectConversation(ctx context.Context, user1ID, user2ID int64) (int64, error)

	// Messages
	GetMessage(ctx context.Context, id int64) (*Message, error)
	CreateMessage(ctx context.Context, m NewMessage) (*Message, error)
	GetConversationMessages(ctx context.Context, conversationID int64) ([]Message, error)
	EditMessage(ctx context.Context, id int64, content string) (*Message, error)
	DeleteMessage(ctx context.Context, id int64) error
}
