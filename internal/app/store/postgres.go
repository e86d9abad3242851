package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an initialized pool (see the db package) as a Store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

const userColumns = `id, username, password_hash, COALESCE(name, ''), COALESCE(email, ''),
	COALESCE(designation, ''), COALESCE(bio, ''), availability, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Email,
		&u.Designation, &u.Bio, &u.Availability, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user account by id.
func (p *Postgres) GetUser(ctx context.Context, id int64) (*User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByUsername fetches a user account by its unique username.
func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// CreateUser inserts a new user account.
func (p *Postgres) CreateUser(ctx context.Context, u NewUser) (*User, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, name, email)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		RETURNING `+userColumns,
		u.Username, u.PasswordHash, u.Name, u.Email)
	return scanUser(row)
}

// GetAllUsers returns the reduced listing view of every account, including the
// current availability so REST reads reflect presence.
func (p *Postgres) GetAllUsers(ctx context.Context) ([]UserBasicInfo, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, username, COALESCE(name, ''), availability, COALESCE(designation, '')
		FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserBasicInfo
	for rows.Next() {
		var u UserBasicInfo
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Availability, &u.Designation); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserAvailability persists the user's availability status.
func (p *Postgres) UpdateUserAvailability(ctx context.Context, id int64, availability string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE users SET availability = $2 WHERE id = $1`, id, availability)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConversation fetches a conversation by id.
func (p *Postgres) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var c Conversation
	err := p.pool.QueryRow(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(description, ''), is_group, COALESCE(created_by, 0), created_at
		FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.IsGroup, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetUserConversations returns every conversation the user is a member of.
// Clients call this after (re)connecting to discover where to fetch history.
func (p *Postgres) GetUserConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT c.id, COALESCE(c.name, ''), COALESCE(c.description, ''), c.is_group, COALESCE(c.created_by, 0), c.created_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsGroup, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// CreateConversation inserts a new conversation.
func (p *Postgres) CreateConversation(ctx context.Context, nc NewConversation) (*Conversation, error) {
	var c Conversation
	err := p.pool.QueryRow(ctx, `
		INSERT INTO conversations (name, description, is_group, created_by)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4)
		RETURNING id, COALESCE(name, ''), COALESCE(description, ''), is_group, COALESCE(created_by, 0), created_at`,
		nc.Name, nc.Description, nc.IsGroup, nc.CreatedBy).
		Scan(&c.ID, &c.Name, &c.Description, &c.IsGroup, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversationMembers returns every membership row of a conversation.
func (p *Postgres) GetConversationMembers(ctx context.Context, conversationID int64) ([]ConversationMember, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_id, user_id, is_admin, can_message, joined_at
		FROM conversation_members WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []ConversationMember
	for rows.Next() {
		var m ConversationMember
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.IsAdmin, &m.CanMessage, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AddConversationMember inserts a membership row.
func (p *Postgres) AddConversationMember(ctx context.Context, nm NewConversationMember) (*ConversationMember, error) {
	var m ConversationMember
	err := p.pool.QueryRow(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id, is_admin, can_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, conversation_id, user_id, is_admin, can_message, joined_at`,
		nm.ConversationID, nm.UserID, nm.IsAdmin, nm.CanMessage).
		Scan(&m.ID, &m.ConversationID, &m.UserID, &m.IsAdmin, &m.CanMessage, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RemoveConversationMember deletes a membership row.
func (p *Postgres) RemoveConversationMember(ctx context.Context, conversationID, userID int64) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM conversation_members WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDirectConversation returns the id of an existing non-group conversation
// containing exactly the two given users, or 0 when none exists.
func (p *Postgres) GetDirectConversation(ctx context.Context, user1ID, user2ID int64) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN conversation_members m1 ON m1.conversation_id = c.id AND m1.user_id = $1
		JOIN conversation_members m2 ON m2.conversation_id = c.id AND m2.user_id = $2
		WHERE c.is_group = FALSE
		LIMIT 1`, user1ID, user2ID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

const messageColumns = `id, conversation_id, sender_id, COALESCE(content, ''), attachments,
	is_edited, is_deleted, reply_to_id, sent_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var attachments []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &attachments,
		&m.IsEdited, &m.IsDeleted, &m.ReplyToID, &m.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments for message %d: %w", m.ID, err)
		}
	}
	return &m, nil
}

// GetMessage fetches a message by id.
func (p *Postgres) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// CreateMessage persists a new message and returns the stored record,
// including its server-assigned id and timestamp.
func (p *Postgres) CreateMessage(ctx context.Context, nm NewMessage) (*Message, error) {
	var attachments []byte
	if len(nm.Attachments) > 0 {
		var err error
		attachments, err = json.Marshal(nm.Attachments)
		if err != nil {
			return nil, fmt.Errorf("encode attachments: %w", err)
		}
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, attachments, reply_to_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns,
		nm.ConversationID, nm.SenderID, nm.Content, attachments, nm.ReplyToID)
	return scanMessage(row)
}

// GetConversationMessages returns a conversation's messages in persisted
// order. Clients order by sent_at / id, never by delivery order.
func (p *Postgres) GetConversationMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// EditMessage replaces the content of a message and marks it edited.
func (p *Postgres) EditMessage(ctx context.Context, id int64, content string) (*Message, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE messages SET content = $2, is_edited = TRUE
		WHERE id = $1
		RETURNING `+messageColumns, id, content)
	return scanMessage(row)
}

// DeleteMessage soft-deletes a message: the row survives so replies keep a
// target, but content and attachments are cleared.
func (p *Postgres) DeleteMessage(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE, content = NULL, attachments = NULL
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
