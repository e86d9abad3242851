package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/pkg/auth/jwt"
	"github.com/Davnspvtltd/teamchat/internal/pkg/errs"
	"github.com/Davnspvtltd/teamchat/internal/pkg/resp"
)

// fakeConversationStore overrides only what the handler under test touches;
// anything else panics loudly through the embedded nil interface.
type fakeConversationStore struct {
	store.Store

	userConversations map[int64][]store.Conversation
	lastListedUserID  int64
}

func (s *fakeConversationStore) GetUserConversations(_ context.Context, userID int64) ([]store.Conversation, error) {
	s.lastListedUserID = userID
	return s.userConversations[userID], nil
}

// asUser attaches the identity the extractor middleware would have injected.
func asUser(r *http.Request, userID int64) *http.Request {
	payload := &jwt.Payload{UserID: userID, Username: "tester"}
	return r.WithContext(context.WithValue(r.Context(), jwt.ContextAuthPayloadKey, payload))
}

func TestHandleListConversations(t *testing.T) {
	st := &fakeConversationStore{
		userConversations: map[int64][]store.Conversation{
			1: {
				{ID: 10, Name: "engineering", IsGroup: true, CreatedBy: 1, CreatedAt: time.Now()},
				{ID: 11, IsGroup: false, CreatedBy: 2, CreatedAt: time.Now()},
			},
		},
	}
	deps := &AppDeps{Store: st}

	r := asUser(httptest.NewRequest("GET", "/api/conversations", nil), 1)
	w := httptest.NewRecorder()
	HandleListConversations(deps)(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if st.lastListedUserID != 1 {
		t.Fatalf("listed conversations for user %d, want the requester (1)", st.lastListedUserID)
	}

	var body resp.JSONResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != 0 {
		t.Fatalf("business code = %d, want 0", body.Code)
	}

	data, ok := body.Data.(map[string]any)
	if !ok {
		t.Fatalf("response data = %T, want an object", body.Data)
	}
	conversations, ok := data["conversations"].([]any)
	if !ok || len(conversations) != 2 {
		t.Fatalf("conversations = %v, want the requester's 2 conversations", data["conversations"])
	}
}

func TestHandleListConversationsRequiresIdentity(t *testing.T) {
	deps := &AppDeps{Store: &fakeConversationStore{}}

	r := httptest.NewRequest("GET", "/api/conversations", nil)
	w := httptest.NewRecorder()
	HandleListConversations(deps)(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d for anonymous request, want %d", w.Code, http.StatusUnauthorized)
	}

	var body resp.JSONResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != errs.ErrUnauthorized {
		t.Fatalf("business code = %d, want %d", body.Code, errs.ErrUnauthorized)
	}
}
