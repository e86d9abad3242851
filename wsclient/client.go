/*
Package wsclient implements the Go client transport for the realtime protocol:
connection lifecycle, automatic reconnection with exponential backoff,
application-level heartbeat with a staleness watchdog, and a REST fallback for
chat messages composed while the connection is down.
*/
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Davnspvtltd/teamchat/internal/app/chat"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
)

// Connection states.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateOpen
	StateClosed
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffCap        = 30 * time.Second
	DefaultMaxAttempts       = 5
	DefaultPingInterval      = 30 * time.Second

	writeWait = 10 * time.Second
)

// ErrGaveUp is returned by Run after MaxAttempts consecutive failed
// connection attempts.
var ErrGaveUp = errors.New("wsclient: gave up reconnecting")

// ErrNotConnected is returned by Send when the connection is not open and no
// fallback applies.
var ErrNotConnected = errors.New("wsclient: not connected")

// Config controls one Client.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://host:8080/ws".
	URL string

	// UserID is sent in the auth frame after every (re)connect.
	UserID int64

	// Reconnection backoff: delay = min(BackoffBase * BackoffMultiplier^n, BackoffCap)
	// where n counts consecutive failures since the last successful open.
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffCap        time.Duration

	// MaxAttempts bounds consecutive failed attempts before giving up.
	MaxAttempts int

	// PingInterval is the application-level heartbeat period. The staleness
	// watchdog force-closes the connection when no server traffic arrives
	// within StaleThreshold (default 2.5x PingInterval).
	PingInterval   time.Duration
	StaleThreshold time.Duration

	// RetryableClose decides whether a close code warrants reconnection.
	// The default retries everything except a normal closure (1000).
	RetryableClose func(code int) bool

	// OnFrame receives every decoded inbound frame. Called from the read
	// loop; implementations must not block.
	OnFrame func(chat.Frame)

	// OnGiveUp is invoked once when MaxAttempts is exhausted.
	OnGiveUp func(err error)

	// SendFallback, when set, is used by Send to deliver chat messages over
	// REST while the connection is down. Only message frames fall back;
	// typing and status frames are meaningless after the fact and are dropped.
	SendFallback func(ctx context.Context, msg chat.MessagePayload) error
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = c.PingInterval*2 + c.PingInterval/2
	}
	if c.RetryableClose == nil {
		c.RetryableClose = func(code int) bool {
			return code != websocket.CloseNormalClosure
		}
	}
	return c
}

// Backoff computes the reconnection delay for the given consecutive failure
// count: min(base * multiplier^attempt, max).
func Backoff(base time.Duration, multiplier float64, max time.Duration, attempt int) time.Duration {
	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(max) {
			return max
		}
	}
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// Client maintains one logical realtime connection across physical reconnects.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	state atomic.Int32

	// writeMu serializes writes to the current connection.
	writeMu sync.Mutex
	conn    *websocket.Conn

	// lastActivity holds the unix-nano time of the last inbound traffic,
	// maintained by the read loop and inspected by the watchdog.
	lastActivity atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Client. Run must be called to connect.
func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg.withDefaults(),
		dialer: websocket.DefaultDialer,
		logger: logx.Logger().With().Str("component", "wsclient").Logger(),
		closed: make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() int32 {
	return c.state.Load()
}

// Run connects and keeps the connection alive until ctx is cancelled, Close
// is called, the server closes normally, or MaxAttempts consecutive failures
// exhaust the retry budget (ErrGaveUp).
func (c *Client) Run(ctx context.Context) error {
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			c.state.Store(StateClosed)
			return ctx.Err()
		case <-c.closed:
			c.state.Store(StateClosed)
			return nil
		default:
		}

		c.state.Store(StateConnecting)

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			attempts++
			c.logger.Warn().Err(err).Int("attempt", attempts).Msg("Connection attempt failed")

			if attempts >= c.cfg.MaxAttempts {
				return c.giveUp(err)
			}
			if !c.waitBackoff(ctx, attempts-1) {
				c.state.Store(StateClosed)
				return ctx.Err()
			}
			continue
		}

		retryable, sessionErr := c.runSession(ctx, conn)
		if !retryable {
			c.state.Store(StateClosed)
			return nil
		}

		// A session that opened successfully resets the retry budget.
		if sessionErr == nil || errors.Is(sessionErr, errSessionOpened) {
			attempts = 0
		}

		attempts++
		if attempts >= c.cfg.MaxAttempts {
			return c.giveUp(sessionErr)
		}
		if !c.waitBackoff(ctx, attempts-1) {
			c.state.Store(StateClosed)
			return ctx.Err()
		}
	}
}

// errSessionOpened marks a session that reached the open state before failing,
// distinguishing it from a dial-and-die for backoff accounting.
var errSessionOpened = errors.New("wsclient: session was open")

// runSession authenticates on one physical connection and reads frames until
// it fails. The first return value reports whether reconnection should follow.
func (c *Client) runSession(ctx context.Context, conn *websocket.Conn) (bool, error) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.lastActivity.Store(time.Now().UnixNano())

	authFrame, err := chat.NewFrame(chat.TypeAuth, chat.AuthPayload{UserID: c.cfg.UserID})
	if err != nil {
		conn.Close()
		return true, err
	}
	if err := c.writeFrame(authFrame); err != nil {
		conn.Close()
		return true, err
	}

	c.state.Store(StateOpen)
	c.logger.Info().Str("url", c.cfg.URL).Msg("Connection open")

	heartbeatDone := make(chan struct{})
	go c.runHeartbeat(conn, heartbeatDone)

	readErr := c.readLoop(conn)
	close(heartbeatDone)
	conn.Close()

	c.writeMu.Lock()
	c.conn = nil
	c.writeMu.Unlock()
	c.state.Store(StateDisconnected)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.closed:
		return false, nil
	default:
	}

	var closeErr *websocket.CloseError
	if errors.As(readErr, &closeErr) && !c.cfg.RetryableClose(closeErr.Code) {
		c.logger.Info().Int("close_code", closeErr.Code).Msg("Server closed connection, not retrying")
		return false, nil
	}

	c.logger.Warn().Err(readErr).Msg("Connection lost, will reconnect")
	return true, fmt.Errorf("%w: %w", errSessionOpened, readErr)
}

// readLoop decodes inbound frames and forwards them to OnFrame until the
// connection fails.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, frameBytes, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		c.lastActivity.Store(time.Now().UnixNano())

		var frame chat.Frame
		if err := json.Unmarshal(frameBytes, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("Server sent invalid JSON frame")
			continue
		}

		// Heartbeat replies carry no information beyond liveness.
		if frame.Type == chat.TypePong {
			continue
		}

		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(frame)
		}
	}
}

// runHeartbeat sends application-level pings and force-closes the connection
// when inbound traffic goes stale, so a half-open TCP connection cannot hold
// the client in a false Open state.
func (c *Client) runHeartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	pingFrame, err := chat.NewFrame(chat.TypePing, nil)
	if err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, c.lastActivity.Load()))
			if idle > c.cfg.StaleThreshold {
				c.logger.Warn().Dur("idle", idle).Msg("Connection stale, forcing close")
				conn.Close()
				return
			}

			if err := c.writeFrame(pingFrame); err != nil {
				return
			}
		}
	}
}

// Send delivers a frame over the open connection. While disconnected, message
// frames fall back to SendFallback when configured; all other frame types are
// dropped with ErrNotConnected.
func (c *Client) Send(ctx context.Context, frame chat.Frame) error {
	if c.state.Load() == StateOpen {
		if err := c.writeFrame(frame); err == nil {
			return nil
		}
		// fall through: the write raced a disconnect
	}

	if frame.Type == chat.TypeMessage && c.cfg.SendFallback != nil {
		var msg chat.MessagePayload
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return fmt.Errorf("wsclient: decode message payload for fallback: %w", err)
		}
		c.logger.Info().Int64("conversation_id", msg.ConversationID).Msg("Connection down, sending message over REST fallback")
		return c.cfg.SendFallback(ctx, msg)
	}

	return ErrNotConnected
}

func (c *Client) writeFrame(frame chat.Frame) error {
	frameBytes, err := frame.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frameBytes)
}

// waitBackoff sleeps for the computed backoff delay. Returns false when ctx
// was cancelled or the client closed during the wait.
func (c *Client) waitBackoff(ctx context.Context, attempt int) bool {
	delay := Backoff(c.cfg.BackoffBase, c.cfg.BackoffMultiplier, c.cfg.BackoffCap, attempt)
	c.logger.Info().Dur("delay", delay).Int("attempt", attempt+1).Msg("Waiting before reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-c.closed:
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) giveUp(err error) error {
	c.state.Store(StateClosed)
	c.logger.Error().Err(err).Int("max_attempts", c.cfg.MaxAttempts).Msg("Giving up reconnecting")

	if c.cfg.OnGiveUp != nil {
		c.cfg.OnGiveUp(err)
	}
	return ErrGaveUp
}

// Close terminates the client permanently. Any in-flight Run returns after
// the current connection, if any, is closed.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		if c.conn != nil {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.conn.Close()
		}
		c.writeMu.Unlock()

		c.state.Store(StateClosed)
	})
}
