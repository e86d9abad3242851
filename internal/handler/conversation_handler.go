/*
Package handler provides HTTP handler functions for conversation and membership management.
*/
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/pkg/auth/jwt"
	"github.com/Davnspvtltd/teamchat/internal/pkg/errs"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
	"github.com/Davnspvtltd/teamchat/internal/pkg/req"
	"github.com/Davnspvtltd/teamchat/internal/pkg/resp"
)

// findMember returns the membership row for userID, or nil if absent.
func findMember(members []store.ConversationMember, userID int64) *store.ConversationMember {
	for i := range members {
		if members[i].UserID == userID {
			return &members[i]
		}
	}
	return nil
}

// requireMember resolves the conversation's membership and verifies userID is
// part of it. Returns the full member list so callers can reuse it.
func requireMember(ctx context.Context, deps *AppDeps, conversationID, userID int64) ([]store.ConversationMember, *store.ConversationMember, *errs.CustomError) {
	members, err := deps.Store.GetConversationMembers(ctx, conversationID)
	if err != nil {
		logx.Error(err, "failed to fetch conversation members", "conversation_id", conversationID)
		return nil, nil, errs.NewError(errs.ErrUnknown)
	}

	member := findMember(members, userID)
	if member == nil {
		return nil, nil, errs.NewError(errs.ErrNotConversationMember)
	}

	return members, member, nil
}

// HandleListConversations returns every conversation the requester belongs
// to. Clients hit this after connecting to discover their conversations.
func HandleListConversations(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversations, err := deps.Store.GetUserConversations(r.Context(), identity.UserID)
		if err != nil {
			logx.Error(err, "failed to fetch user conversations", "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"conversations": conversations,
		})
	}
}

type CreateConversationInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MemberIDs   []int64 `json:"memberIds,omitempty"`
}

// HandleCreateConversation creates a group conversation. The creator becomes
// an admin member; every listed member joins with messaging enabled.
func HandleCreateConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateConversationInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Name == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conversation, err := deps.Store.CreateConversation(r.Context(), store.NewConversation{
			Name:        input.Name,
			Description: input.Description,
			IsGroup:     true,
			CreatedBy:   identity.UserID,
		})
		if err != nil {
			logx.Error(err, "failed to create conversation")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if _, err := deps.Store.AddConversationMember(r.Context(), store.NewConversationMember{
			ConversationID: conversation.ID,
			UserID:         identity.UserID,
			IsAdmin:        true,
			CanMessage:     true,
		}); err != nil {
			logx.Error(err, "failed to add creator as member", "conversation_id", conversation.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		for _, memberID := range input.MemberIDs {
			if memberID == identity.UserID {
				continue
			}
			if _, err := deps.Store.AddConversationMember(r.Context(), store.NewConversationMember{
				ConversationID: conversation.ID,
				UserID:         memberID,
				CanMessage:     true,
			}); err != nil {
				logx.Error(err, "failed to add member", "conversation_id", conversation.ID, "user_id", memberID)
			}
		}

		resp.RespondCreated(w, r, map[string]any{
			"conversation": conversation,
		})
	}
}

type DirectConversationInput struct {
	UserID int64 `json:"userId"`
}

// HandleDirectConversation finds or creates the direct conversation between
// the requester and the given user.
func HandleDirectConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input DirectConversationInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.UserID <= 0 || input.UserID == identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if _, err := deps.Store.GetUser(r.Context(), input.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "failed to fetch direct conversation peer", "user_id", input.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		existingID, err := deps.Store.GetDirectConversation(r.Context(), identity.UserID, input.UserID)
		if err != nil {
			logx.Error(err, "failed to look up direct conversation")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if existingID != 0 {
			conversation, err := deps.Store.GetConversation(r.Context(), existingID)
			if err != nil {
				logx.Error(err, "failed to fetch direct conversation", "conversation_id", existingID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}
			resp.RespondSuccess(w, r, map[string]any{
				"conversation": conversation,
			})
			return
		}

		conversation, err := deps.Store.CreateConversation(r.Context(), store.NewConversation{
			IsGroup:   false,
			CreatedBy: identity.UserID,
		})
		if err != nil {
			logx.Error(err, "failed to create direct conversation")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		for _, userID := range []int64{identity.UserID, input.UserID} {
			if _, err := deps.Store.AddConversationMember(r.Context(), store.NewConversationMember{
				ConversationID: conversation.ID,
				UserID:         userID,
				CanMessage:     true,
			}); err != nil {
				logx.Error(err, "failed to add direct conversation member", "conversation_id", conversation.ID, "user_id", userID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}
		}

		resp.RespondCreated(w, r, map[string]any{
			"conversation": conversation,
		})
	}
}

// HandleGetConversation returns one conversation, members only.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversationID, customErr := req.PathInt64(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		conversation, err := deps.Store.GetConversation(r.Context(), conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrConversationNotFound))
				return
			}
			logx.Error(err, "failed to fetch conversation", "conversation_id", conversationID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if _, _, customErr := requireMember(r.Context(), deps, conversationID, identity.UserID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"conversation": conversation,
		})
	}
}

// HandleListMembers returns the membership of a conversation, members only.
func HandleListMembers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversationID, customErr := req.PathInt64(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		members, _, customErr := requireMember(r.Context(), deps, conversationID, identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"members": members,
		})
	}
}

type AddMemberInput struct {
	UserID     int64 `json:"userId"`
	IsAdmin    bool  `json:"isAdmin,omitempty"`
	CanMessage *bool `json:"canMessage,omitempty"`
}

// HandleAddMember adds a user to a group conversation. Admins only.
func HandleAddMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversationID, customErr := req.PathInt64(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input AddMemberInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.UserID <= 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conversation, err := deps.Store.GetConversation(r.Context(), conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrConversationNotFound))
				return
			}
			logx.Error(err, "failed to fetch conversation", "conversation_id", conversationID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		// Direct conversations have a fixed two-member roster.
		if !conversation.IsGroup {
			resp.RespondError(w, r, errs.NewError(errs.ErrMemberPermissionDenied))
			return
		}

		_, requester, customErr := requireMember(r.Context(), deps, conversationID, identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !requester.IsAdmin {
			resp.RespondError(w, r, errs.NewError(errs.ErrMemberPermissionDenied))
			return
		}

		canMessage := true
		if input.CanMessage != nil {
			canMessage = *input.CanMessage
		}

		member, err := deps.Store.AddConversationMember(r.Context(), store.NewConversationMember{
			ConversationID: conversationID,
			UserID:         input.UserID,
			IsAdmin:        input.IsAdmin,
			CanMessage:     canMessage,
		})
		if err != nil {
			logx.Error(err, "failed to add conversation member", "conversation_id", conversationID, "user_id", input.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondCreated(w, r, map[string]any{
			"member": member,
		})
	}
}

// HandleRemoveMember removes a user from a group conversation. A member may
// always remove themself (leave); removing anyone else requires admin.
func HandleRemoveMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conversationID, customErr := req.PathInt64(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		targetUserID, customErr := req.PathInt64(chi.URLParam(r, "userId"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		conversation, err := deps.Store.GetConversation(r.Context(), conversationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrConversationNotFound))
				return
			}
			logx.Error(err, "failed to fetch conversation", "conversation_id", conversationID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if !conversation.IsGroup {
			resp.RespondError(w, r, errs.NewError(errs.ErrMemberPermissionDenied))
			return
		}

		_, requester, customErr := requireMember(r.Context(), deps, conversationID, identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if targetUserID != identity.UserID && !requester.IsAdmin {
			resp.RespondError(w, r, errs.NewError(errs.ErrMemberPermissionDenied))
			return
		}

		if err := deps.Store.RemoveConversationMember(r.Context(), conversationID, targetUserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrNotConversationMember))
				return
			}
			logx.Error(err, "failed to remove conversation member", "conversation_id", conversationID, "user_id", targetUserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}
