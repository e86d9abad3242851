package chat

import (
	"context"
	"errors"
	"testing"
)

// fakePresenceStore records availability updates.
type fakePresenceStore struct {
	updates map[int64]string
	err     error
}

func (s *fakePresenceStore) UpdateUserAvailability(_ context.Context, id int64, availability string) error {
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = make(map[int64]string)
	}
	s.updates[id] = availability
	return nil
}

func TestPresenceOnlineOffline(t *testing.T) {
	st := &fakePresenceStore{}
	p := NewPresence(st)

	if err := p.SetOnline(context.Background(), 1); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	if st.updates[1] != StatusOnline {
		t.Fatalf("availability = %q, want %q", st.updates[1], StatusOnline)
	}

	if err := p.SetOffline(context.Background(), 1); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	if st.updates[1] != StatusOffline {
		t.Fatalf("availability = %q, want %q", st.updates[1], StatusOffline)
	}
}

func TestPresenceSetStatusRejectsUnknown(t *testing.T) {
	st := &fakePresenceStore{}
	p := NewPresence(st)

	if err := p.SetStatus(context.Background(), 1, "invisible"); err == nil {
		t.Fatal("SetStatus accepted an unrecognized status")
	}
	if len(st.updates) != 0 {
		t.Fatalf("rejected status was persisted: %v", st.updates)
	}

	for _, status := range []string{StatusOnline, StatusBusy, StatusAway, StatusDND, StatusOffline} {
		if err := p.SetStatus(context.Background(), 1, status); err != nil {
			t.Fatalf("SetStatus(%q): %v", status, err)
		}
	}
}

func TestPresencePropagatesStoreError(t *testing.T) {
	st := &fakePresenceStore{err: errors.New("db down")}
	p := NewPresence(st)

	if err := p.SetOnline(context.Background(), 1); err == nil {
		t.Fatal("SetOnline swallowed the store error")
	}
}
