package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeHandle records delivered frames and close calls.
type fakeHandle struct {
	mu         sync.Mutex
	frames     []Frame
	closeCodes []int
	deliverErr error
}

func (h *fakeHandle) Deliver(f Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deliverErr != nil {
		return h.deliverErr
	}
	h.frames = append(h.frames, f)
	return nil
}

func (h *fakeHandle) Close(code int, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCodes = append(h.closeCodes, code)
}

func (h *fakeHandle) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func (h *fakeHandle) closedWith() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.closeCodes...)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandle{}

	r.Register(7, h)

	got, ok := r.Lookup(7)
	if !ok || got != h {
		t.Fatalf("Lookup(7) = %v, %v, want the registered handle", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistrySecondConnectionReplacesFirst(t *testing.T) {
	r := NewRegistry()
	first := &fakeHandle{}
	second := &fakeHandle{}

	r.Register(7, first)
	r.Register(7, second)

	if codes := first.closedWith(); len(codes) != 1 || codes[0] != WsCloseCodeSessionReplaced {
		t.Fatalf("first handle close codes = %v, want [%d]", codes, WsCloseCodeSessionReplaced)
	}
	if codes := second.closedWith(); len(codes) != 0 {
		t.Fatalf("second handle close codes = %v, want none", codes)
	}
	if got, ok := r.Lookup(7); !ok || got != second {
		t.Fatalf("Lookup(7) returned the replaced handle")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after replacement", r.Len())
	}
}

func TestRegistryUnregisterIgnoresStaleHandle(t *testing.T) {
	r := NewRegistry()
	old := &fakeHandle{}
	current := &fakeHandle{}

	r.Register(7, old)
	r.Register(7, current)

	// The replaced connection's teardown races the successor's registration;
	// its unregister must not evict the live handle.
	if r.Unregister(7, old) {
		t.Fatal("stale unregister reported ownership")
	}

	if got, ok := r.Lookup(7); !ok || got != current {
		t.Fatalf("stale unregister removed the live handle")
	}

	if !r.Unregister(7, current) {
		t.Fatal("current handle unregister reported no ownership")
	}
	if _, ok := r.Lookup(7); ok {
		t.Fatal("Lookup(7) found an entry after unregister")
	}
}

func TestRegistrySendToAbsentUserIsNoop(t *testing.T) {
	r := NewRegistry()

	frame, err := NewFrame(TypePong, nil)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	if r.Send(42, frame) {
		t.Fatal("Send reported delivery to an absent user")
	}
}

func TestRegistryBroadcastExcludesAndIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	sender := &fakeHandle{}
	broken := &fakeHandle{deliverErr: errors.New("queue full")}
	healthy := &fakeHandle{}

	r.Register(1, sender)
	r.Register(2, broken)
	r.Register(3, healthy)

	frame, err := NewFrame(TypeUserStatus, UserStatusPayload{UserID: 1, Status: StatusOnline})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	r.Broadcast(frame, 1)

	if sender.frameCount() != 0 {
		t.Fatalf("excluded user received %d frames, want 0", sender.frameCount())
	}
	if healthy.frameCount() != 1 {
		t.Fatalf("healthy recipient received %d frames, want 1 despite another recipient failing", healthy.frameCount())
	}
}

func TestRegistryShutdownClosesWithGoingAway(t *testing.T) {
	r := NewRegistry()
	first := &fakeHandle{}
	second := &fakeHandle{}

	r.Register(1, first)
	r.Register(2, second)

	r.Shutdown()

	// A server stop is not a replaced session; clients see going-away, not 4001.
	for _, h := range []*fakeHandle{first, second} {
		if codes := h.closedWith(); len(codes) != 1 || codes[0] != websocket.CloseGoingAway {
			t.Fatalf("close codes = %v, want [%d]", codes, websocket.CloseGoingAway)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after shutdown, want 0", r.Len())
	}
}
