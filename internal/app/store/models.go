/*
Package store implements the persistence layer consumed by both the REST
handlers and the realtime core: users with availability, conversations and
their memberships, and messages with opaque attachment metadata.
*/
package store

import "time"

// User represents a user account row.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Designation  string    `json:"designation,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Availability string    `json:"availability"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserBasicInfo is the reduced user view returned by listing endpoints.
type UserBasicInfo struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name,omitempty"`
	Availability string `json:"availability"`
	Designation  string `json:"designation,omitempty"`
}

// Conversation represents a direct or group conversation.
type Conversation struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	IsGroup     bool      `json:"isGroup"`
	CreatedBy   int64     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ConversationMember represents one user's membership in a conversation.
// The realtime core reads these rows to resolve fan-out targets and to check
// the canMessage permission; it never mutates them.
type ConversationMember struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	UserID         int64     `json:"userId"`
	IsAdmin        bool      `json:"isAdmin"`
	CanMessage     bool      `json:"canMessage"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// Attachment carries opaque attachment metadata on a message. Files
// themselves live in object storage and are reached through the url.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversationId"`
	SenderID       int64        `json:"senderId"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IsEdited       bool         `json:"isEdited"`
	IsDeleted      bool         `json:"isDeleted"`
	ReplyToID      *int64       `json:"replyToId,omitempty"`
	SentAt         time.Time    `json:"sentAt"`
}

// NewMessage is the insert payload for CreateMessage.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	Content        string
	Attachments    []Attachment
	ReplyToID      *int64
}

// NewUser is the insert payload for CreateUser.
type NewUser struct {
	Username     string
	PasswordHash string
	Name         string
	Email        string
}

// NewConversation is the insert payload for CreateConversation.
type NewConversation struct {
	Name        string
	Description string
	IsGroup     bool
	CreatedBy   int64
}

// NewConversationMember is the insert payload for AddConversationMember.
type NewConversationMember struct {
	ConversationID int64
	UserID         int64
	IsAdmin        bool
	CanMessage     bool
}
