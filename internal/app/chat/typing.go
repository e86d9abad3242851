/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the TypingNotifier, the transient conversation-scoped map of
who is currently typing. Nothing here is persisted. Clients own the inactivity
timeout and send explicit stop events; a server-side TTL additionally expires
entries whose stop frame was lost, so a typist can never appear stuck.
*/
package chat

import (
	"sync"
	"time"
)

const (
	// DefaultTypingTTL bounds how long a typing entry survives without a
	// refreshing start event. Client stop timers fire well within this.
	DefaultTypingTTL = 10 * time.Second

	// typingSweepInterval is how often the expiry sweeper runs.
	typingSweepInterval = 2 * time.Second
)

// typingEntry identifies one expired typist for the expiry callback.
type typingEntry struct {
	ConversationID int64
	UserID         int64
}

// TypingNotifier tracks, per conversation, the set of user ids currently
// typing together with the time of their last start event.
type TypingNotifier struct {
	mu      sync.Mutex
	typists map[int64]map[int64]time.Time
	ttl     time.Duration

	// onExpire is invoked (outside the lock) for every TTL-expired entry, so
	// the owner can broadcast a synthetic stop event to the conversation.
	onExpire func(conversationID, userID int64)

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTypingNotifier constructs a TypingNotifier and starts its expiry sweeper.
// A ttl of 0 selects DefaultTypingTTL. onExpire may be nil.
func NewTypingNotifier(ttl time.Duration, onExpire func(conversationID, userID int64)) *TypingNotifier {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}

	t := &TypingNotifier{
		typists:  make(map[int64]map[int64]time.Time),
		ttl:      ttl,
		onExpire: onExpire,
		stop:     make(chan struct{}),
	}

	go t.runSweeper()

	return t
}

// Update records a typing start or stop for userID in conversationID.
// Empty per-conversation sets are discarded immediately.
func (t *TypingNotifier) Update(conversationID, userID int64, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typists[conversationID]

	if isTyping {
		if !ok {
			set = make(map[int64]time.Time)
			t.typists[conversationID] = set
		}
		set[userID] = time.Now()
		return
	}

	if ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(t.typists, conversationID)
		}
	}
}

// ActiveTypists returns the user ids currently typing in the conversation.
func (t *TypingNotifier) ActiveTypists(conversationID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typists[conversationID]
	if !ok {
		return nil
	}

	ids := make([]int64, 0, len(set))
	for userID := range set {
		ids = append(ids, userID)
	}
	return ids
}

// expireStale removes every entry older than the TTL relative to now and
// returns the removed entries. Exposed to the sweeper and to tests.
func (t *TypingNotifier) expireStale(now time.Time) []typingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []typingEntry
	for conversationID, set := range t.typists {
		for userID, startedAt := range set {
			if now.Sub(startedAt) > t.ttl {
				delete(set, userID)
				expired = append(expired, typingEntry{ConversationID: conversationID, UserID: userID})
			}
		}
		if len(set) == 0 {
			delete(t.typists, conversationID)
		}
	}
	return expired
}

func (t *TypingNotifier) runSweeper() {
	ticker := time.NewTicker(typingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			expired := t.expireStale(now)
			if t.onExpire == nil {
				continue
			}
			for _, e := range expired {
				t.onExpire(e.ConversationID, e.UserID)
			}
		}
	}
}

// Close stops the expiry sweeper. Safe to call more than once.
func (t *TypingNotifier) Close() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}
