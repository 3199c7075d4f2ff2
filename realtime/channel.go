// Package realtime keeps one authenticated websocket open to the message
// service and fans incoming events out to listeners.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/jrsteele09/go-tenant-session/tenants"
)

// DefaultPath is appended to the service base URL.
const DefaultPath = "ws"

const connectKey = "connect"

// NowTimeFunc stamps outgoing typing and presence events.
var NowTimeFunc = time.Now

// errReconnectCancelled aborts a scheduled reconnect that lost to Disconnect.
var errReconnectCancelled = errors.New("scheduled reconnect cancelled")

// ContextReader is the part of *tenants.ContextStore the channel needs.
type ContextReader interface {
	Get() tenants.ActiveContext
}

// Listener receives the raw payload of one event.
type Listener func(payload json.RawMessage)

// Subscription identifies a listener registered with On.
type Subscription struct {
	EventType string
	ID        uuid.UUID
}

type Option func(*Channel)

func WithPath(path string) Option {
	return func(c *Channel) {
		c.path = path
	}
}

func WithBackoff(backoff Backoff) Option {
	return func(c *Channel) {
		c.backoff = backoff
	}
}

func WithDialer(dial DialFunc) Option {
	return func(c *Channel) {
		c.dial = dial
	}
}

func WithScheduler(scheduler Scheduler) Option {
	return func(c *Channel) {
		c.scheduler = scheduler
	}
}

// Channel is the realtime connection manager.
type Channel struct {
	baseURL   string
	path      string
	creds     credentials.Store
	contexts  ContextReader
	dial      DialFunc
	scheduler Scheduler
	backoff   Backoff
	logger    zerolog.Logger

	mu          sync.Mutex
	state       State
	conn        Conn
	attempts    int
	nextDelay   time.Duration
	timer       Timer
	manualClose bool

	writeMu      sync.Mutex // gorilla allows a single concurrent writer
	connectGroup singleflight.Group

	listenersMu sync.RWMutex
	listeners   map[string]map[uuid.UUID]Listener
}

// New builds a closed channel for the service at baseURL. Nothing is dialled until Connect.
func New(baseURL string, creds credentials.Store, contexts ContextReader, opts ...Option) (*Channel, error) {
	c := &Channel{
		baseURL:   baseURL,
		path:      DefaultPath,
		creds:     creds,
		contexts:  contexts,
		dial:      GorillaDialer(websocket.DefaultDialer.HandshakeTimeout),
		scheduler: clockScheduler{},
		backoff:   DefaultBackoff(),
		logger:    logging.Component("realtime"),
		listeners: make(map[string]map[uuid.UUID]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := Endpoint(baseURL, c.path, Handshake{}); err != nil {
		return nil, fmt.Errorf("[Channel New] %w", err)
	}
	c.nextDelay = c.backoff.Base
	return c, nil
}

// Connect opens the connection unless it is already open. Concurrent callers
// share one dial.
func (c *Channel) Connect(ctx context.Context) error {
	for {
		_, err, shared := c.connectGroup.Do(connectKey, func() (any, error) {
			return nil, c.connect(ctx, false)
		})
		if shared && errors.Is(err, errReconnectCancelled) {
			continue
		}
		return err
	}
}

func (c *Channel) reconnect() {
	_, err, _ := c.connectGroup.Do(connectKey, func() (any, error) {
		return nil, c.connect(context.Background(), true)
	})
	if err != nil && !errors.Is(err, errReconnectCancelled) {
		c.logger.Warn().Err(err).Msg("reconnect failed")
	}
}

func (c *Channel) connect(ctx context.Context, scheduled bool) error {
	c.mu.Lock()
	if scheduled && c.manualClose {
		c.mu.Unlock()
		return errReconnectCancelled
	}
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.manualClose = false
	c.stopTimerLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	endpoint, err := c.endpoint(ctx)
	if err != nil {
		c.setState(StateClosed)
		return err
	}

	conn, err := c.dial(ctx, endpoint)
	if err != nil {
		c.handleClose(nil, websocket.CloseAbnormalClosure, err)
		return errors.Wrapf(errors.ErrConnectionFailed, "%v", err)
	}

	c.mu.Lock()
	if c.manualClose {
		c.state = StateClosed
		c.mu.Unlock()
		c.closeConn(conn)
		return errors.ErrDisconnected
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.nextDelay = c.backoff.Base
	c.mu.Unlock()

	c.logger.Info().Msg("realtime connection open")
	go c.readLoop(conn)
	return nil
}

// endpoint reads the token and context at dial time so reconnects pick up refreshed values.
func (c *Channel) endpoint(ctx context.Context) (string, error) {
	accessToken, err := credentials.AccessToken(ctx, c.creds)
	if err != nil {
		return "", fmt.Errorf("[Channel Connect] reading credential: %w", err)
	}
	var active tenants.ActiveContext
	if c.contexts != nil {
		active = c.contexts.Get()
	}
	return Endpoint(c.baseURL, c.path, Handshake{
		Token:           accessToken,
		EstablishmentID: active.EstablishmentID,
		Role:            string(active.Role),
	})
}

func (c *Channel) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			c.handleClose(conn, code, err)
			return
		}
		c.dispatch(data)
	}
}

// handleClose records a closure and schedules a reconnect when it was abnormal.
// conn is nil for a failed dial.
func (c *Channel) handleClose(conn Conn, code int, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn != nil && c.conn != conn {
		return
	}
	c.conn = nil
	c.state = StateClosed
	if conn != nil {
		_ = conn.Close()
	}

	event := c.logger.Info().Int("code", code)
	if cause != nil {
		event = event.AnErr("cause", cause)
	}
	event.Msg("realtime connection closed")

	if c.manualClose || code == websocket.CloseNormalClosure {
		return
	}
	if c.attempts >= c.backoff.MaxAttempts {
		c.logger.Warn().Int("attempts", c.attempts).Msg("reconnect attempts exhausted")
		return
	}
	c.attempts++
	c.nextDelay = c.backoff.Delay(c.attempts)
	c.logger.Info().
		Dur("delay", c.nextDelay).
		Int("attempt", c.attempts).
		Int("max_attempts", c.backoff.MaxAttempts).
		Msg("scheduling reconnect")
	c.timer = c.scheduler.AfterFunc(c.nextDelay, c.reconnect)
}

// Disconnect closes the connection with code 1000 and cancels any pending
// reconnect. The channel stays closed until Connect is called.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	if conn == nil {
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	c.mu.Unlock()

	c.closeConn(conn)

	// A Connect may have opened a new connection while the close frame was written.
	c.mu.Lock()
	if c.state == StateClosing && c.conn == nil {
		c.state = StateClosed
	}
	c.mu.Unlock()
	c.logger.Info().Msg("realtime connection closed by client")
}

func (c *Channel) closeConn(conn Conn) {
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"))
	c.writeMu.Unlock()
	_ = conn.Close()
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Send writes one event. It fails with errors.ErrSendWhileClosed unless the
// connection is open; nothing is queued.
func (c *Channel) Send(eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("[Channel Send] encoding payload: %w", err)
	}
	data, err := json.Marshal(Message{Type: eventType, Payload: raw})
	if err != nil {
		return fmt.Errorf("[Channel Send] encoding message: %w", err)
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		c.logger.Warn().Str("type", eventType).Msg("cannot send, connection not open")
		return errors.ErrSendWhileClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("[Channel Send] %w", err)
	}
	c.logger.Debug().Str("type", eventType).Msg("event sent")
	return nil
}

// SendTyping announces that the user started or stopped typing in a conversation.
func (c *Channel) SendTyping(conversationID string, isTyping bool) error {
	eventType := EventTypingStop
	if isTyping {
		eventType = EventTypingStart
	}
	return c.Send(eventType, TypingPayload{
		ConversationID: conversationID,
		Timestamp:      NowTimeFunc().UTC().Format(time.RFC3339Nano),
	})
}

func (c *Channel) UpdatePresence(status PresenceStatus) error {
	return c.Send(EventPresenceUpdate, PresencePayload{
		Status:    status,
		Timestamp: NowTimeFunc().UTC().Format(time.RFC3339Nano),
	})
}

// On registers listener for eventType. It may be called at any time, including from a listener.
func (c *Channel) On(eventType string, listener Listener) Subscription {
	sub := Subscription{EventType: eventType, ID: uuid.New()}
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	if c.listeners[eventType] == nil {
		c.listeners[eventType] = make(map[uuid.UUID]Listener)
	}
	c.listeners[eventType][sub.ID] = listener
	return sub
}

// Off removes a listener. Event types left without listeners are dropped.
func (c *Channel) Off(sub Subscription) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	listeners, ok := c.listeners[sub.EventType]
	if !ok {
		return
	}
	delete(listeners, sub.ID)
	if len(listeners) == 0 {
		delete(c.listeners, sub.EventType)
	}
}

func (c *Channel) dispatch(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error().Err(err).Msg("dropping undecodable frame")
		return
	}
	c.logger.Debug().Str("type", msg.Type).Msg("event received")

	c.listenersMu.RLock()
	snapshot := make([]Listener, 0, len(c.listeners[msg.Type]))
	for _, listener := range c.listeners[msg.Type] {
		snapshot = append(snapshot, listener)
	}
	c.listenersMu.RUnlock()

	for _, listener := range snapshot {
		c.deliver(msg, listener)
	}
}

func (c *Channel) deliver(msg Message, listener Listener) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("type", msg.Type).Interface("panic", r).Msg("listener panicked")
		}
	}()
	listener(msg.Payload)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) IsConnected() bool {
	return c.State() == StateOpen
}

// Attempts is the number of reconnects scheduled since the last successful connect.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// NextDelay is the delay of the most recently scheduled reconnect.
func (c *Channel) NextDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextDelay
}
