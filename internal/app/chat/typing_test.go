package chat

import (
	"testing"
	"time"
)

func newTestNotifier() *TypingNotifier {
	n := NewTypingNotifier(DefaultTypingTTL, nil)
	n.Close() // tests drive expiry through expireStale directly
	return n
}

func containsID(ids []int64, want int64) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestTypingStartAndStop(t *testing.T) {
	n := newTestNotifier()

	n.Update(10, 1, true)
	n.Update(10, 2, true)

	typists := n.ActiveTypists(10)
	if len(typists) != 2 || !containsID(typists, 1) || !containsID(typists, 2) {
		t.Fatalf("ActiveTypists(10) = %v, want users 1 and 2", typists)
	}

	n.Update(10, 1, false)

	typists = n.ActiveTypists(10)
	if len(typists) != 1 || !containsID(typists, 2) {
		t.Fatalf("ActiveTypists(10) = %v after stop, want only user 2", typists)
	}
}

func TestTypingConversationsAreIndependent(t *testing.T) {
	n := newTestNotifier()

	n.Update(10, 1, true)
	n.Update(20, 1, true)
	n.Update(10, 1, false)

	if got := n.ActiveTypists(10); len(got) != 0 {
		t.Fatalf("ActiveTypists(10) = %v, want empty", got)
	}
	if got := n.ActiveTypists(20); len(got) != 1 {
		t.Fatalf("ActiveTypists(20) = %v, want user 1 still typing", got)
	}
}

func TestTypingStopWithoutStartIsNoop(t *testing.T) {
	n := newTestNotifier()

	n.Update(10, 1, false)

	if got := n.ActiveTypists(10); len(got) != 0 {
		t.Fatalf("ActiveTypists(10) = %v, want empty", got)
	}
}

func TestTypingTTLExpiry(t *testing.T) {
	n := newTestNotifier()

	n.Update(10, 1, true)

	// A later start event gets a later deadline.
	time.Sleep(50 * time.Millisecond)
	n.Update(10, 2, true)

	expired := n.expireStale(time.Now().Add(DefaultTypingTTL).Add(-25 * time.Millisecond))
	if len(expired) != 1 || expired[0].UserID != 1 || expired[0].ConversationID != 10 {
		t.Fatalf("expireStale returned %v, want exactly user 1 in conversation 10", expired)
	}

	expired = n.expireStale(time.Now().Add(2 * DefaultTypingTTL))
	if len(expired) != 1 || expired[0].UserID != 2 {
		t.Fatalf("expireStale returned %v, want user 2", expired)
	}

	if got := n.ActiveTypists(10); len(got) != 0 {
		t.Fatalf("ActiveTypists(10) = %v after full expiry, want empty", got)
	}
}

func TestTypingExpiryCallback(t *testing.T) {
	type event struct{ conversationID, userID int64 }
	events := make(chan event, 1)

	n := NewTypingNotifier(time.Millisecond, func(conversationID, userID int64) {
		select {
		case events <- event{conversationID, userID}:
		default:
		}
	})
	defer n.Close()

	n.Update(10, 1, true)

	select {
	case e := <-events:
		if e.conversationID != 10 || e.userID != 1 {
			t.Fatalf("expiry callback got %+v, want conversation 10 user 1", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expiry callback never fired")
	}
}

func TestTypingCloseIsIdempotent(t *testing.T) {
	n := NewTypingNotifier(0, nil)
	n.Close()
	n.Close()
}
