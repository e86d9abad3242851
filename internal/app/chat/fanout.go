/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the Fanout engine: given a persisted message (or edit or
deletion), it resolves the conversation's membership and pushes the event to
every member's live connection. The websocket frame path and the REST mutation
handlers both call these entry points, so delivery logic never diverges.
*/
package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
)

// FanoutStore is the narrow persistence contract the fan-out engine needs.
// Membership is read-only here; it may be concurrently modified by the CRUD
// layer and fan-out tolerates that (best-effort, not transactional).
type FanoutStore interface {
	GetConversationMembers(ctx context.Context, conversationID int64) ([]store.ConversationMember, error)
}

// Fanout pushes conversation events to currently-connected members. Members
// without a live connection are skipped silently; the REST fetch after
// reconnect is their recovery path.
type Fanout struct {
	store    FanoutStore
	registry *Registry
	logger   zerolog.Logger
}

// NewFanout constructs a Fanout over the given store and registry.
func NewFanout(st FanoutStore, registry *Registry) *Fanout {
	return &Fanout{
		store:    st,
		registry: registry,
		logger:   logx.Logger().With().Str("component", "fanout").Logger(),
	}
}

// Deliver pushes a newly stored message to every member of its conversation
// except the sender, who already holds local optimistic state from their own
// request.
func (f *Fanout) Deliver(ctx context.Context, msg *store.Message) {
	frame, err := NewFrame(TypeNewMessage, msg)
	if err != nil {
		f.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("Failed to build new_message frame")
		return
	}

	f.push(ctx, msg.ConversationID, msg.SenderID, frame)
}

// DeliverEdit pushes an updated message record to every member except the editor.
func (f *Fanout) DeliverEdit(ctx context.Context, msg *store.Message) {
	frame, err := NewFrame(TypeMessageEdited, msg)
	if err != nil {
		f.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("Failed to build message_edited frame")
		return
	}

	f.push(ctx, msg.ConversationID, msg.SenderID, frame)
}

// DeliverDelete announces a message deletion to every member except the actor.
func (f *Fanout) DeliverDelete(ctx context.Context, conversationID, messageID, actorID int64) {
	frame, err := NewFrame(TypeMessageDeleted, MessageDeletedPayload{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
	if err != nil {
		f.logger.Error().Err(err).Int64("message_id", messageID).Msg("Failed to build message_deleted frame")
		return
	}

	f.push(ctx, conversationID, actorID, frame)
}

// NotifyTyping relays a typing start/stop from userID to the other members of
// the conversation. Never echoed back to the typist.
func (f *Fanout) NotifyTyping(ctx context.Context, conversationID, userID int64, isTyping bool) {
	frame, err := NewFrame(TypeTyping, TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	if err != nil {
		f.logger.Error().Err(err).Int64("conversation_id", conversationID).Msg("Failed to build typing frame")
		return
	}

	f.push(ctx, conversationID, userID, frame)
}

// push resolves the conversation's members and sends the frame to each one
// except excludeUserID. Members without a live connection are skipped;
// per-recipient delivery failures are handled inside Registry.Send.
func (f *Fanout) push(ctx context.Context, conversationID, excludeUserID int64, frame Frame) {
	members, err := f.store.GetConversationMembers(ctx, conversationID)
	if err != nil {
		f.logger.Error().Err(err).
			Int64("conversation_id", conversationID).
			Str("frame_type", string(frame.Type)).
			Msg("Failed to resolve conversation members for fan-out")
		return
	}

	for _, member := range members {
		if member.UserID == excludeUserID {
			continue
		}
		f.registry.Send(member.UserID, frame)
	}
}
