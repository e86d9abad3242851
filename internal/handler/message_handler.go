/*
Package handler provides HTTP handler functions for message history and mutations.

Message mutations fan out over the realtime layer through the same engine the
websocket path uses, so REST-originated messages reach connected members the
same way frame-originated ones do.
*/
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Davnspvtltd/teamchat/internal/app/chat"
	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/pkg/auth/jwt"
	"github.com/Davnspvtltd/teamchat/internal/pkg/errs"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
	"github.com/Davnspvtltd/teamchat/internal/pkg/req"
	"github.com/Davnspvtltd/teamchat/internal/pkg/resp"
)

// HandleListMessages returns the message history of a conversation, members only.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
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

		if _, _, customErr := requireMember(r.Context(), deps, conversationID, identity.UserID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		messages, err := deps.Store.GetConversationMessages(r.Context(), conversationID)
		if err != nil {
			logx.Error(err, "failed to fetch conversation messages", "conversation_id", conversationID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": messages,
		})
	}
}

type SendMessageInput struct {
	ConversationID int64              `json:"conversationId"`
	Content        string             `json:"content"`
	Attachments    []store.Attachment `json:"attachments,omitempty"`
	ReplyToID      *int64             `json:"replyToId,omitempty"`
}

// validateMessageBody checks content and attachment constraints shared by
// send and edit.
func validateMessageBody(content string, attachments []store.Attachment) *errs.CustomError {
	if len(content) > chat.MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}

	if len(attachments) > chat.MaxAttachmentsCount {
		return errs.NewError(errs.ErrAttachmentCountInvalid, chat.MaxAttachmentsCount)
	}

	if content == "" && len(attachments) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	for _, a := range attachments {
		if a.Name == "" || a.URL == "" || a.Size <= 0 {
			return errs.NewError(errs.ErrAttachmentInvalid)
		}
	}

	return nil
}

// HandleSendMessage persists a new message and fans it out to the other
// members of the conversation. The sender must be a member with messaging
// permission.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input SendMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.ConversationID <= 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := validateMessageBody(input.Content, input.Attachments); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		_, member, customErr := requireMember(r.Context(), deps, input.ConversationID, identity.UserID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !member.CanMessage {
			resp.RespondError(w, r, errs.NewError(errs.ErrCannotMessage))
			return
		}

		message, err := deps.Store.CreateMessage(r.Context(), store.NewMessage{
			ConversationID: input.ConversationID,
			SenderID:       identity.UserID,
			Content:        input.Content,
			Attachments:    input.Attachments,
			ReplyToID:      input.ReplyToID,
		})
		if err != nil {
			logx.Error(err, "failed to persist message", "conversation_id", input.ConversationID)
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageStoreFailed))
			return
		}

		deps.Hub.Fanout.Deliver(r.Context(), message)

		resp.RespondCreated(w, r, map[string]any{
			"message": message,
		})
	}
}

type EditMessageInput struct {
	Content string `json:"content"`
}

// HandleEditMessage updates a message's content. Sender only; deleted
// messages cannot be edited.
func HandleEditMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		messageID, customErr := req.PathInt64(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input EditMessageInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Content == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if len(input.Content) > chat.MaxContentBytes {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentTooLong))
			return
		}

		message, err := deps.Store.GetMessage(r.Context(), messageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
				return
			}
			logx.Error(err, "failed to fetch message", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if message.SenderID != identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotMessageSender))
			return
		}

		if message.IsDeleted {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageDeleted))
			return
		}

		updated, err := deps.Store.EditMessage(r.Context(), messageID, input.Content)
		if err != nil {
			logx.Error(err, "failed to edit message", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		deps.Hub.Fanout.DeliverEdit(r.Context(), updated)

		resp.RespondSuccess(w, r, map[string]any{
			"message": updated,
		})
	}
}

// HandleDeleteMessage soft-deletes a message. Sender only. The stored row
// keeps its position in history with content and attachments cleared.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		messageID, customErr := req.PathInt64(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		message, err := deps.Store.GetMessage(r.Context(), messageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
				return
			}
			logx.Error(err, "failed to fetch message", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if message.SenderID != identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotMessageSender))
			return
		}

		if err := deps.Store.DeleteMessage(r.Context(), messageID); err != nil {
			logx.Error(err, "failed to delete message", "message_id", messageID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		deps.Hub.Fanout.DeliverDelete(r.Context(), message.ConversationID, messageID, identity.UserID)

		resp.RespondSuccess(w, r, nil)
	}
}
