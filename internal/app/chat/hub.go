/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the Hub, the owner of the core's components and their shared
lifecycle: created at server start, torn down at shutdown.
*/
package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
)

// Store is the realtime core's view of the storage collaborator. The CRUD
// layer owns everything else; this core only reads users and membership,
// persists messages from the websocket path, and updates availability.
type Store interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
	GetConversationMembers(ctx context.Context, conversationID int64) ([]store.ConversationMember, error)
	CreateMessage(ctx context.Context, m store.NewMessage) (*store.Message, error)
	UpdateUserAvailability(ctx context.Context, id int64, availability string) error
}

// Hub wires the realtime components together and owns their lifecycle.
// The Registry is the only shared mutable structure; everything else is
// either stateless or internally synchronized.
type Hub struct {
	Registry *Registry
	Presence *Presence
	Typing   *TypingNotifier
	Fanout   *Fanout

	store  Store
	logger zerolog.Logger
}

// NewHub constructs the realtime core over the given store. TTL-expired
// typing entries are broadcast as synthetic stop events so lost stop frames
// cannot leave a user permanently "typing".
func NewHub(st Store) *Hub {
	registry := NewRegistry()
	fanout := NewFanout(st, registry)

	h := &Hub{
		Registry: registry,
		Presence: NewPresence(st),
		Fanout:   fanout,
		store:    st,
		logger:   logx.Logger().With().Str("component", "hub").Logger(),
	}

	h.Typing = NewTypingNotifier(DefaultTypingTTL, func(conversationID, userID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
		defer cancel()
		fanout.NotifyTyping(ctx, conversationID, userID, false)
	})

	return h
}

// Shutdown stops the typing sweeper and closes every live connection.
func (h *Hub) Shutdown() {
	h.logger.Info().Int("connections", h.Registry.Len()).Msg("Shutting down realtime hub")

	h.Typing.Close()
	h.Registry.Shutdown()
}
