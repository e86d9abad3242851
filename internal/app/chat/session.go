/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the Session struct, the per-connection protocol state machine
(Unauthenticated -> Authenticated -> Closed). It manages the connection's
message loops (ReadPump and WritePump) and dispatches inbound frames to the
registry, presence tracker, typing notifier, and fan-out engine.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
	"github.com/Davnspvtltd/teamchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed between inbound traffic (frames or pongs) before
	// the read side considers the connection dead.
	pongWait = 60 * time.Second

	// frequency at which the server sends a transport-level Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum allowed size (in bytes) for message content.
	MaxContentBytes = 5000

	// MaxAttachmentsCount is the maximum number of attachments allowed per message.
	MaxAttachmentsCount = 5

	// WsCloseCodeSessionReplaced is a custom WebSocket Close Code (4000-4999
	// range) signalling that the session was replaced by a new connection for
	// the same user.
	WsCloseCodeSessionReplaced = 4001

	// timeout applied to storage operations issued from frame handlers.
	storeOpTimeout = 5 * time.Second

	// outbound queue capacity per connection.
	sendQueueSize = 256
)

// Session states. No transition leaves stateClosed.
const (
	stateUnauthenticated int32 = iota
	stateAuthenticated
	stateClosed
)

// Session represents one live WebSocket connection and its protocol state.
type Session struct {
	hub  *Hub
	conn *websocket.Conn

	// state holds one of the state* constants. Written by the read pump and
	// by teardown; read by Deliver.
	state atomic.Int32

	// userID is set exactly once, on successful authentication.
	userID int64

	// send is the buffered queue of outbound frames consumed by WritePump.
	// sendMu guards both the channel send in Deliver and the close in
	// closeSend: delivering goroutines (other users' read pumps, the typing
	// sweeper) race the teardown of a kicked session, and an unguarded send
	// on the closed channel would panic in the deliverer.
	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte

	teardownOnce sync.Once

	logger zerolog.Logger
}

// NewSession wraps an accepted WebSocket connection in an unauthenticated session.
func NewSession(hub *Hub, conn *websocket.Conn) *Session {
	sessionLogger := logx.Logger().With().
		Str("component", "session").
		Str("conn_id", randx.ConnectionID()).
		Logger()

	return &Session{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		logger: sessionLogger,
	}
}

// UserID returns the authenticated user id, or 0 before authentication.
func (s *Session) UserID() int64 {
	if s.state.Load() != stateAuthenticated {
		return 0
	}
	return s.userID
}

// ReadPump reads frames from the connection until it closes, dispatching each
// one in receipt order. It performs the session teardown on exit.
func (s *Session) ReadPump() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frameBytes, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		// Any inbound traffic proves liveness, including app-level pings from
		// clients that never send transport pongs.
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Error().Err(err).Msg("Failed to refresh read deadline")
			break
		}

		s.dispatch(frameBytes)
	}
}

// dispatch decodes one inbound frame and routes it by type. Malformed frames
// are logged and dropped; the connection always stays open.
func (s *Session) dispatch(frameBytes []byte) {
	var frame Frame
	if err := json.Unmarshal(frameBytes, &frame); err != nil {
		s.logger.Warn().Err(err).
			Bytes("frame_bytes", frameBytes).
			Msg("Client sent invalid JSON")
		return
	}

	// ping and auth are the only frames an unauthenticated session processes.
	switch frame.Type {
	case TypePing:
		s.replyPong()
		return
	case TypeAuth:
		s.handleAuth(frame.Payload)
		return
	}

	if s.state.Load() != stateAuthenticated {
		s.logger.Debug().
			Str("frame_type", string(frame.Type)).
			Msg("Dropping frame from unauthenticated session")
		return
	}

	switch frame.Type {
	case TypeMessage:
		s.handleMessage(frame.Payload)

	case TypeTyping:
		s.handleTyping(frame.Payload)

	case TypeStatusChange:
		s.handleStatusChange(frame.Payload)

	default:
		s.logger.Warn().
			Str("frame_type", string(frame.Type)).
			Msg("Client sent unsupported frame type")
	}
}

// handleAuth authenticates the session in-band. An unknown user id leaves the
// session open and unauthenticated; a known one registers the connection,
// marks the user online, and announces the status change to everyone else.
func (s *Session) handleAuth(payload json.RawMessage) {
	if s.state.Load() == stateAuthenticated {
		s.logger.Debug().Int64("user_id", s.userID).Msg("Ignoring repeated auth frame")
		return
	}

	var auth AuthPayload
	if err := json.Unmarshal(payload, &auth); err != nil || auth.UserID <= 0 {
		s.logger.Warn().Err(err).Msg("Client sent invalid auth payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	user, err := s.hub.store.GetUser(ctx, auth.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Int64("user_id", auth.UserID).Msg("Auth rejected: unknown user")
		} else {
			s.logger.Error().Err(err).Int64("user_id", auth.UserID).Msg("Auth lookup failed")
		}
		return
	}

	s.userID = user.ID
	s.state.Store(stateAuthenticated)
	s.logger = s.logger.With().Int64("user_id", user.ID).Logger()

	s.hub.Registry.Register(user.ID, s)

	s.reply(TypeAuthSuccess, AuthSuccessPayload{UserID: user.ID})

	if err := s.hub.Presence.SetOnline(ctx, user.ID); err == nil {
		s.broadcastStatus(user.ID, StatusOnline)
	}

	s.logger.Info().Msg("Session authenticated")
}

// handleMessage persists a chat message from this session and hands it to the
// fan-out engine — the same entry point the REST creation path uses. Storage
// failures are logged and swallowed: the session survives, the sender simply
// gets no confirmation and retries.
func (s *Session) handleMessage(payload json.RawMessage) {
	var msg MessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil || msg.ConversationID <= 0 {
		s.logger.Warn().Err(err).Msg("Client sent invalid message payload")
		return
	}

	if len(msg.Content) > MaxContentBytes {
		s.logger.Warn().Int("content_bytes", len(msg.Content)).Msg("Dropping over-long message")
		return
	}

	if len(msg.Attachments) > MaxAttachmentsCount {
		s.logger.Warn().Int("attachments", len(msg.Attachments)).Msg("Dropping message with too many attachments")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	stored, err := s.hub.store.CreateMessage(ctx, store.NewMessage{
		ConversationID: msg.ConversationID,
		SenderID:       s.userID,
		Content:        msg.Content,
		Attachments:    msg.Attachments,
		ReplyToID:      msg.ReplyToID,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Int64("conversation_id", msg.ConversationID).
			Msg("Failed to persist message from websocket frame")
		return
	}

	s.hub.Fanout.Deliver(ctx, stored)
}

// handleTyping updates the typing notifier and relays the event to the other
// members of the conversation.
func (s *Session) handleTyping(payload json.RawMessage) {
	var typing TypingPayload
	if err := json.Unmarshal(payload, &typing); err != nil || typing.ConversationID <= 0 {
		s.logger.Warn().Err(err).Msg("Client sent invalid typing payload")
		return
	}

	s.hub.Typing.Update(typing.ConversationID, s.userID, typing.IsTyping)

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	s.hub.Fanout.NotifyTyping(ctx, typing.ConversationID, s.userID, typing.IsTyping)
}

// handleStatusChange validates and persists an explicit availability change,
// then announces it to everyone else.
func (s *Session) handleStatusChange(payload json.RawMessage) {
	var change StatusChangePayload
	if err := json.Unmarshal(payload, &change); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid status_change payload")
		return
	}

	if !ValidStatus(change.Status) {
		s.logger.Warn().Str("status", change.Status).Msg("Client sent unrecognized availability status")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	if err := s.hub.Presence.SetStatus(ctx, s.userID, change.Status); err != nil {
		return
	}

	s.broadcastStatus(s.userID, change.Status)
}

func (s *Session) replyPong() {
	s.reply(TypePong, nil)
}

// reply queues a frame for this session only.
func (s *Session) reply(frameType FrameType, payload any) {
	frame, err := NewFrame(frameType, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("frame_type", string(frameType)).Msg("Failed to build reply frame")
		return
	}

	if err := s.Deliver(frame); err != nil {
		s.logger.Warn().Err(err).Str("frame_type", string(frameType)).Msg("Failed to queue reply frame")
	}
}

func (s *Session) broadcastStatus(userID int64, status string) {
	frame, err := NewFrame(TypeUserStatus, UserStatusPayload{UserID: userID, Status: status})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to build user_status frame")
		return
	}

	s.hub.Registry.Broadcast(frame, userID)
}

// Deliver implements Handle. It queues an outbound frame without blocking;
// a full queue or a closed session drops the frame with an error, never a
// panic, so delivery failures stay contained to this one connection.
func (s *Session) Deliver(f Frame) error {
	frameBytes, err := f.Encode()
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.sendClosed {
		return errors.New("session closed")
	}

	select {
	case s.send <- frameBytes:
		return nil
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Session send queue full, dropping frame")
		return errors.New("session send queue full")
	}
}

// Close implements Handle. It closes the connection gracefully with the given
// close code; the read pump then runs the normal teardown, where the
// stale-handle guard in Registry.Unregister protects a successor connection.
func (s *Session) Close(code int, reason string) {
	s.logger.Warn().
		Int("close_code", code).
		Str("reason", reason).
		Msg("Closing connection")

	closeMessage := websocket.FormatCloseMessage(code, reason)

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send close message")
	}

	s.closeSend()
}

// closeSend closes the outbound queue exactly once, which terminates WritePump.
// Deliver observes sendClosed under the same lock and drops instead of sending.
func (s *Session) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.sendClosed {
		s.sendClosed = true
		close(s.send)
	}
}

// teardown transitions the session to Closed and, if it was authenticated,
// persists offline presence, unregisters the connection, and announces the
// offline status. Idempotent under repeated close causes.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		wasAuthenticated := s.state.Swap(stateClosed) == stateAuthenticated

		// A replaced session is no longer the registered handle; its user is
		// still connected through the successor, so only the handle that owns
		// the registry entry performs the offline transition.
		if wasAuthenticated && s.hub.Registry.Unregister(s.userID, s) {
			ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
			defer cancel()

			// Persist first so REST reads agree with reality even if the
			// broadcast below is partially dropped.
			if err := s.hub.Presence.SetOffline(ctx, s.userID); err != nil {
				s.logger.Error().Err(err).Msg("Failed to persist offline presence on close")
			}

			s.broadcastStatus(s.userID, StatusOffline)
		}

		s.closeSend()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error during teardown")
		}

		s.logger.Info().Msg("Session closed")
	})
}

// WritePump writes queued frames to the connection and keeps the heartbeat
// alive with periodic transport-level pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frameBytes, ok := <-s.send:
			if !s.writeQueuedFrame(frameBytes, ok) {
				return
			}

		case <-ticker.C:
			if !s.writePing() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send queue.
// Returns false when the WritePump loop should terminate.
func (s *Session) writeQueuedFrame(frameBytes []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			s.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, frameBytes); err != nil {
		s.logger.Warn().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePing sends a periodic transport-level Ping to maintain the heartbeat.
// Returns false when the WritePump loop should terminate.
func (s *Session) writePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
