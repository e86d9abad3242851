/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the Presence tracker, a pure state-transition component: it
validates and persists availability changes and leaves broadcasting to the
caller (the protocol session).
*/
package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
)

// Availability states. online/offline follow the connection lifecycle; the
// rest are advisory statuses a connected user sets explicitly.
const (
	StatusOnline  = "online"
	StatusBusy    = "busy"
	StatusAway    = "away"
	StatusDND     = "dnd"
	StatusOffline = "offline"
)

// ValidStatus reports whether s is one of the recognized availability states.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusBusy, StatusAway, StatusDND, StatusOffline:
		return true
	}
	return false
}

// PresenceStore is the narrow persistence contract Presence needs.
type PresenceStore interface {
	UpdateUserAvailability(ctx context.Context, id int64, availability string) error
}

// Presence owns all availability mutations. There is no in-memory presence
// cache beyond what the Registry implies: presence is "has a registered
// connection" for the online/offline binary, and the persisted value is what
// REST reads reflect.
type Presence struct {
	store  PresenceStore
	logger zerolog.Logger
}

// NewPresence constructs a Presence tracker backed by the given store.
func NewPresence(store PresenceStore) *Presence {
	return &Presence{
		store:  store,
		logger: logx.Logger().With().Str("component", "presence").Logger(),
	}
}

// SetOnline marks the user online. Called on successful authentication of a connection.
func (p *Presence) SetOnline(ctx context.Context, userID int64) error {
	return p.persist(ctx, userID, StatusOnline)
}

// SetOffline marks the user offline. Called on connection close (any cause) or logout.
func (p *Presence) SetOffline(ctx context.Context, userID int64) error {
	return p.persist(ctx, userID, StatusOffline)
}

// SetStatus persists an explicit availability chosen by the user.
func (p *Presence) SetStatus(ctx context.Context, userID int64, status string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid availability status %q", status)
	}
	return p.persist(ctx, userID, status)
}

func (p *Presence) persist(ctx context.Context, userID int64, status string) error {
	if err := p.store.UpdateUserAvailability(ctx, userID, status); err != nil {
		p.logger.Error().Err(err).
			Int64("user_id", userID).
			Str("status", status).
			Msg("Failed to persist availability")
		return err
	}

	p.logger.Debug().
		Int64("user_id", userID).
		Str("status", status).
		Msg("Availability updated")
	return nil
}
