package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/Davnspvtltd/teamchat/internal/pkg/auth/jwt"
	"github.com/Davnspvtltd/teamchat/internal/pkg/errs"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
	"github.com/Davnspvtltd/teamchat/internal/pkg/randx"
	"github.com/Davnspvtltd/teamchat/internal/pkg/req"
	"github.com/Davnspvtltd/teamchat/internal/pkg/resp"
)

const (
	// MaxAttachmentBytes caps individual attachment size (25 MB).
	MaxAttachmentBytes int64 = 25 << 20

	// PresignedURLDuration is the validity window of presigned upload and
	// download URLs.
	PresignedURLDuration = 15 * time.Minute
)

// PresignUploadInput defines the JSON input structure for generating an upload URL.
type PresignUploadInput struct {
	ConversationID int64  `json:"conversationId"`
	FileName       string `json:"fileName"`
	MimeType       string `json:"mimeType"`
	FileSize       int64  `json:"fileSize"`
}

// HandlePresignUpload generates a time-limited, pre-signed URL for an
// attachment upload, scoped to a conversation the requester is a member of.
func HandlePresignUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.ConversationID <= 0 || input.FileName == "" || input.MimeType == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if input.FileSize <= 0 || input.FileSize > MaxAttachmentBytes {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileSizeTooLarge))
			return
		}

		if _, _, customErr := requireMember(r.Context(), deps, input.ConversationID, identity.UserID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := randx.AttachmentKey(input.ConversationID, input.FileName)

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		data := map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// authorizeFileKey extracts the conversation prefix of an attachment key and
// checks it against the requester's membership.
func authorizeFileKey(r *http.Request, deps *AppDeps, userID int64, fileKey string) *errs.CustomError {
	prefix, _, found := strings.Cut(fileKey, "/")
	if !found {
		return errs.NewError(errs.ErrInvalidParams)
	}

	conversationID, customErr := req.PathInt64(prefix)
	if customErr != nil {
		return customErr
	}

	if _, _, customErr := requireMember(r.Context(), deps, conversationID, userID); customErr != nil {
		return customErr
	}

	// Keys are always "<conversationId>/<uuid><ext>"; reject anything deeper.
	if strings.Count(fileKey, "/") != 1 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	return nil
}

// HandlePresignDownload generates a time-limited, pre-signed URL for an
// attachment download and redirects to it. Conversation members only.
func HandlePresignDownload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		fileKey := r.URL.Query().Get("k")
		if fileKey == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := authorizeFileKey(r, deps, identity.UserID, fileKey); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), fileKey, PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

// HandleDeleteFile removes an uploaded attachment object, used by clients to
// clean up files discarded before the message was sent.
func HandleDeleteFile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		fileKey := r.URL.Query().Get("k")
		if fileKey == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := authorizeFileKey(r, deps, identity.UserID, fileKey); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.StorageService.Delete(r.Context(), fileKey); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		logx.Info("Attachment deleted", "key", fileKey, "user_id", identity.UserID)
		resp.RespondSuccess(w, r, nil)
	}
}
