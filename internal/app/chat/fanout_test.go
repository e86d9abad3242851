package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
)

// fakeFanoutStore serves a fixed membership per conversation.
type fakeFanoutStore struct {
	members map[int64][]store.ConversationMember
	err     error
}

func (s *fakeFanoutStore) GetConversationMembers(_ context.Context, conversationID int64) ([]store.ConversationMember, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.members[conversationID], nil
}

func membership(conversationID int64, userIDs ...int64) []store.ConversationMember {
	members := make([]store.ConversationMember, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, store.ConversationMember{
			ConversationID: conversationID,
			UserID:         id,
			CanMessage:     true,
		})
	}
	return members
}

func TestFanoutDeliverReachesAllMembersExceptSender(t *testing.T) {
	st := &fakeFanoutStore{members: map[int64][]store.ConversationMember{
		10: membership(10, 1, 2, 3),
	}}
	registry := NewRegistry()
	f := NewFanout(st, registry)

	sender := &fakeHandle{}
	member2 := &fakeHandle{}
	member3 := &fakeHandle{}
	registry.Register(1, sender)
	registry.Register(2, member2)
	registry.Register(3, member3)

	msg := &store.Message{
		ID:             100,
		ConversationID: 10,
		SenderID:       1,
		Content:        "hello",
		SentAt:         time.Now(),
	}

	f.Deliver(context.Background(), msg)

	if sender.frameCount() != 0 {
		t.Fatalf("sender received %d frames, want 0", sender.frameCount())
	}
	for name, h := range map[string]*fakeHandle{"member2": member2, "member3": member3} {
		if h.frameCount() != 1 {
			t.Fatalf("%s received %d frames, want 1", name, h.frameCount())
		}
		if h.frames[0].Type != TypeNewMessage {
			t.Fatalf("%s received frame type %q, want %q", name, h.frames[0].Type, TypeNewMessage)
		}
	}

	var delivered store.Message
	if err := json.Unmarshal(member2.frames[0].Payload, &delivered); err != nil {
		t.Fatalf("decode delivered payload: %v", err)
	}
	if delivered.ID != msg.ID || delivered.Content != msg.Content {
		t.Fatalf("delivered message = %+v, want id %d content %q", delivered, msg.ID, msg.Content)
	}
}

func TestFanoutSkipsDisconnectedMembers(t *testing.T) {
	st := &fakeFanoutStore{members: map[int64][]store.ConversationMember{
		10: membership(10, 1, 2, 3),
	}}
	registry := NewRegistry()
	f := NewFanout(st, registry)

	// Only member 2 is connected.
	member2 := &fakeHandle{}
	registry.Register(2, member2)

	f.Deliver(context.Background(), &store.Message{ID: 1, ConversationID: 10, SenderID: 1})

	if member2.frameCount() != 1 {
		t.Fatalf("connected member received %d frames, want 1", member2.frameCount())
	}
}

func TestFanoutMembershipLookupFailure(t *testing.T) {
	st := &fakeFanoutStore{err: errors.New("db down")}
	registry := NewRegistry()
	f := NewFanout(st, registry)

	h := &fakeHandle{}
	registry.Register(2, h)

	f.Deliver(context.Background(), &store.Message{ID: 1, ConversationID: 10, SenderID: 1})

	if h.frameCount() != 0 {
		t.Fatalf("frames delivered despite membership lookup failure: %d", h.frameCount())
	}
}

func TestFanoutNotifyTypingExcludesTypist(t *testing.T) {
	st := &fakeFanoutStore{members: map[int64][]store.ConversationMember{
		10: membership(10, 1, 2),
	}}
	registry := NewRegistry()
	f := NewFanout(st, registry)

	typist := &fakeHandle{}
	other := &fakeHandle{}
	registry.Register(1, typist)
	registry.Register(2, other)

	f.NotifyTyping(context.Background(), 10, 1, true)

	if typist.frameCount() != 0 {
		t.Fatalf("typist received their own typing event")
	}
	if other.frameCount() != 1 {
		t.Fatalf("other member received %d frames, want 1", other.frameCount())
	}

	var payload TypingPayload
	if err := json.Unmarshal(other.frames[0].Payload, &payload); err != nil {
		t.Fatalf("decode typing payload: %v", err)
	}
	if payload.UserID != 1 || payload.ConversationID != 10 || !payload.IsTyping {
		t.Fatalf("typing payload = %+v", payload)
	}
}

func TestFanoutDeliverDelete(t *testing.T) {
	st := &fakeFanoutStore{members: map[int64][]store.ConversationMember{
		10: membership(10, 1, 2),
	}}
	registry := NewRegistry()
	f := NewFanout(st, registry)

	other := &fakeHandle{}
	registry.Register(2, other)

	f.DeliverDelete(context.Background(), 10, 77, 1)

	if other.frameCount() != 1 {
		t.Fatalf("member received %d frames, want 1", other.frameCount())
	}
	if other.frames[0].Type != TypeMessageDeleted {
		t.Fatalf("frame type = %q, want %q", other.frames[0].Type, TypeMessageDeleted)
	}

	var payload MessageDeletedPayload
	if err := json.Unmarshal(other.frames[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.MessageID != 77 || payload.ConversationID != 10 {
		t.Fatalf("payload = %+v", payload)
	}
}
