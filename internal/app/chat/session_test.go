package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
)

// fakeChatStore implements the realtime core's Store contract in memory.
type fakeChatStore struct {
	mu           sync.Mutex
	users        map[int64]*store.User
	members      map[int64][]store.ConversationMember
	availability map[int64]string
	messages     []store.Message
	nextID       int64
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		users:        make(map[int64]*store.User),
		members:      make(map[int64][]store.ConversationMember),
		availability: make(map[int64]string),
		nextID:       1,
	}
}

func (s *fakeChatStore) addUser(id int64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &store.User{ID: id, Username: username, Availability: StatusOffline}
}

func (s *fakeChatStore) addConversation(conversationID int64, userIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[conversationID] = membership(conversationID, userIDs...)
}

func (s *fakeChatStore) GetUser(_ context.Context, id int64) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeChatStore) GetConversationMembers(_ context.Context, conversationID int64) ([]store.ConversationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[conversationID], nil
}

func (s *fakeChatStore) CreateMessage(_ context.Context, m store.NewMessage) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := store.Message{
		ID:             s.nextID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Attachments:    m.Attachments,
		ReplyToID:      m.ReplyToID,
		SentAt:         time.Now(),
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *fakeChatStore) UpdateUserAvailability(_ context.Context, id int64, availability string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[id] = availability
	return nil
}

func (s *fakeChatStore) availabilityOf(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availability[id]
}

func (s *fakeChatStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func registryHas(hub *Hub, userID int64) bool {
	_, ok := hub.Registry.Lookup(userID)
	return ok
}

// newTestServer starts a websocket endpoint backed by a fresh hub.
func newTestServer(t *testing.T, st *fakeChatStore) (*Hub, string) {
	t.Helper()

	hub := NewHub(st)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		session := NewSession(hub, conn)
		go session.WritePump()
		session.ReadPump()
	}))

	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frameType FrameType, payload any) {
	t.Helper()
	frame, err := NewFrame(frameType, payload)
	if err != nil {
		t.Fatalf("build %s frame: %v", frameType, err)
	}
	frameBytes, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode %s frame: %v", frameType, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frameBytes); err != nil {
		t.Fatalf("write %s frame: %v", frameType, err)
	}
}

// readFrameOfType reads frames until one of the wanted type arrives, skipping
// unrelated broadcasts that interleave in multi-connection tests.
func readFrameOfType(t *testing.T, conn *websocket.Conn, want FrameType) Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, frameBytes, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s frame: %v", want, err)
		}
		var frame Frame
		if err := json.Unmarshal(frameBytes, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type == want {
			return frame
		}
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, userID int64) {
	t.Helper()
	sendFrame(t, conn, TypeAuth, AuthPayload{UserID: userID})
	frame := readFrameOfType(t, conn, TypeAuthSuccess)

	var payload AuthSuccessPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode auth_success: %v", err)
	}
	if payload.UserID != userID {
		t.Fatalf("auth_success userId = %d, want %d", payload.UserID, userID)
	}
}

// newServerSession upgrades a single connection and hands back the server-side
// session without starting its pumps, so tests can drive the Handle directly.
func newServerSession(t *testing.T, hub *Hub) *Session {
	t.Helper()

	upgrader := websocket.Upgrader{}
	sessions := make(chan *Session, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessions <- NewSession(hub, conn)
	}))
	t.Cleanup(srv.Close)

	dialWS(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	select {
	case s := <-sessions:
		t.Cleanup(func() { s.conn.Close() })
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("server-side session never arrived")
		return nil
	}
}

func TestSessionDeliverAfterCloseReturnsError(t *testing.T) {
	st := newFakeChatStore()
	hub := NewHub(st)
	t.Cleanup(hub.Shutdown)

	session := newServerSession(t, hub)

	// A kicked session keeps its Authenticated state until its own read pump
	// runs teardown, which can take until the read deadline expires. A
	// delivery landing in that window must fail with an error, not panic the
	// delivering goroutine.
	session.state.Store(stateAuthenticated)
	session.userID = 1
	session.Close(WsCloseCodeSessionReplaced, "newer connection for the same user")

	frame, err := NewFrame(TypeUserStatus, UserStatusPayload{UserID: 2, Status: StatusOnline})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if err := session.Deliver(frame); err == nil {
		t.Fatal("Deliver on a closed session reported success")
	}
}

func TestSessionDeliverConcurrentWithClose(t *testing.T) {
	st := newFakeChatStore()
	hub := NewHub(st)
	t.Cleanup(hub.Shutdown)

	session := newServerSession(t, hub)

	frame, err := NewFrame(TypePong, nil)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}

	// Broadcasters race the teardown of a kicked session. Any ordering of
	// these deliveries against Close must end in dropped frames, never a
	// send on the closed queue.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				session.Deliver(frame)
			}
		}()
	}

	session.Close(WsCloseCodeSessionReplaced, "duplicate connection")
	wg.Wait()
}

func TestSessionPingBeforeAuth(t *testing.T) {
	st := newFakeChatStore()
	_, url := newTestServer(t, st)

	conn := dialWS(t, url)

	sendFrame(t, conn, TypePing, nil)
	readFrameOfType(t, conn, TypePong)
}

func TestSessionAuthKnownUser(t *testing.T) {
	st := newFakeChatStore()
	st.addUser(1, "alice")
	hub, url := newTestServer(t, st)

	conn := dialWS(t, url)
	authenticate(t, conn, 1)

	if st.availabilityOf(1) != StatusOnline {
		t.Fatalf("availability = %q after auth, want %q", st.availabilityOf(1), StatusOnline)
	}
	if !registryHas(hub, 1) {
		t.Fatal("authenticated user has no registry entry")
	}
}

func TestSessionAuthUnknownUserKeepsConnectionOpen(t *testing.T) {
	st := newFakeChatStore()
	_, url := newTestServer(t, st)

	conn := dialWS(t, url)

	sendFrame(t, conn, TypeAuth, AuthPayload{UserID: 999})

	// No auth_success arrives; the connection must still answer pings.
	sendFrame(t, conn, TypePing, nil)
	frame := readFrameOfType(t, conn, TypePong)
	if frame.Type != TypePong {
		t.Fatalf("frame type = %q, want pong", frame.Type)
	}
}

func TestSessionMalformedFrameIsDropped(t *testing.T) {
	st := newFakeChatStore()
	_, url := newTestServer(t, st)

	conn := dialWS(t, url)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write malformed frame: %v", err)
	}

	sendFrame(t, conn, TypePing, nil)
	readFrameOfType(t, conn, TypePong)
}

func TestSessionMessageFanout(t *testing.T) {
	st := newFakeChatStore()
	st.addUser(1, "alice")
	st.addUser(2, "bob")
	st.addConversation(10, 1, 2)
	_, url := newTestServer(t, st)

	alice := dialWS(t, url)
	authenticate(t, alice, 1)
	bob := dialWS(t, url)
	authenticate(t, bob, 2)

	sendFrame(t, alice, TypeMessage, MessagePayload{ConversationID: 10, Content: "hi bob"})

	frame := readFrameOfType(t, bob, TypeNewMessage)
	var msg store.Message
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		t.Fatalf("decode new_message: %v", err)
	}
	if msg.SenderID != 1 || msg.ConversationID != 10 || msg.Content != "hi bob" {
		t.Fatalf("delivered message = %+v", msg)
	}

	if st.messageCount() != 1 {
		t.Fatalf("stored messages = %d, want 1", st.messageCount())
	}
}

func TestSessionTypingRelay(t *testing.T) {
	st := newFakeChatStore()
	st.addUser(1, "alice")
	st.addUser(2, "bob")
	st.addConversation(10, 1, 2)
	hub, url := newTestServer(t, st)

	alice := dialWS(t, url)
	authenticate(t, alice, 1)
	bob := dialWS(t, url)
	authenticate(t, bob, 2)

	sendFrame(t, alice, TypeTyping, TypingPayload{ConversationID: 10, IsTyping: true})

	frame := readFrameOfType(t, bob, TypeTyping)
	var payload TypingPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode typing payload: %v", err)
	}
	if payload.UserID != 1 || !payload.IsTyping {
		t.Fatalf("typing payload = %+v, want userId 1 isTyping true", payload)
	}

	// The notifier tracks the typist until the stop event.
	deadline := time.Now().Add(time.Second)
	for len(hub.Typing.ActiveTypists(10)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.Typing.ActiveTypists(10); len(got) != 1 || got[0] != 1 {
		t.Fatalf("ActiveTypists(10) = %v, want [1]", got)
	}

	sendFrame(t, alice, TypeTyping, TypingPayload{ConversationID: 10, IsTyping: false})
	frame = readFrameOfType(t, bob, TypeTyping)
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode typing payload: %v", err)
	}
	if payload.IsTyping {
		t.Fatal("expected a stop event")
	}
}

func TestSessionStatusChangeBroadcast(t *testing.T) {
	st := newFakeChatStore()
	st.addUser(1, "alice")
	st.addUser(2, "bob")
	_, url := newTestServer(t, st)

	alice := dialWS(t, url)
	authenticate(t, alice, 1)
	bob := dialWS(t, url)
	authenticate(t, bob, 2)

	sendFrame(t, alice, TypeStatusChange, StatusChangePayload{Status: StatusBusy})

	frame := readFrameOfType(t, bob, TypeUserStatus)
	var payload UserStatusPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode user_status: %v", err)
	}
	if payload.UserID != 1 || payload.Status != StatusBusy {
		t.Fatalf("user_status payload = %+v, want user 1 busy", payload)
	}

	if st.availabilityOf(1) != StatusBusy {
		t.Fatalf("availability = %q, want %q", st.availabilityOf(1), StatusBusy)
	}
}

func TestSessionDuplicateConnectionReplaced(t *testing.T) {
	st := newFakeChatStore()
	st.addUser(1, "alice")
	hub, url := newTestServer(t, st)

	first := dialWS(t, url)
	authenticate(t, first, 1)

	second := dialWS(t, url)
	authenticate(t, second, 1)

	// The first connection receives the session-replaced close code.
	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := first.ReadMessage()
		if err != nil {
			closeErr, ok := err.(*websocket.CloseError)
			if !ok {
				t.Fatalf("first connection failed with %v, want a close error", err)
			}
			if closeErr.Code != WsCloseCodeSessionReplaced {
				t.Fatalf("close code = %d, want %d", closeErr.Code, WsCloseCodeSessionReplaced)
			}
			break
		}
	}

	// The successor stays registered and functional.
	deadline := time.Now().Add(time.Second)
	for !registryHas(hub, 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !registryHas(hub, 1) {
		t.Fatal("successor connection lost its registry entry")
	}

	sendFrame(t, second, TypePing, nil)
	readFrameOfType(t, second, TypePong)
}

func TestSessionDisconnectBroadcastsOffline(t *testing.T) {
	st := newFakeChatStore()
	st.addUser(1, "alice")
	st.addUser(2, "bob")
	hub, url := newTestServer(t, st)

	alice := dialWS(t, url)
	authenticate(t, alice, 1)
	bob := dialWS(t, url)
	authenticate(t, bob, 2)

	// Bob's authentication was announced to the already-connected alice.
	frame := readFrameOfType(t, alice, TypeUserStatus)
	var online UserStatusPayload
	if err := json.Unmarshal(frame.Payload, &online); err != nil {
		t.Fatalf("decode user_status: %v", err)
	}
	if online.UserID != 2 || online.Status != StatusOnline {
		t.Fatalf("user_status payload = %+v, want user 2 online", online)
	}

	alice.Close()

	frame = readFrameOfType(t, bob, TypeUserStatus)
	var payload UserStatusPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		t.Fatalf("decode user_status: %v", err)
	}
	if payload.UserID != 1 || payload.Status != StatusOffline {
		t.Fatalf("user_status payload = %+v, want user 1 offline", payload)
	}

	deadline := time.Now().Add(time.Second)
	for registryHas(hub, 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registryHas(hub, 1) {
		t.Fatal("closed connection still registered")
	}
	if st.availabilityOf(1) != StatusOffline {
		t.Fatalf("availability = %q after disconnect, want %q", st.availabilityOf(1), StatusOffline)
	}
}
