// Package socket owns the single live connection to the messaging server:
// dialing, presence registration, typed event dispatch, and the bounded
// reconnect policy. The manager is constructed once at composition root and
// passed by reference to whatever needs it; there is no package-level slot.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"devlink-client/internal/presence"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when an emit is attempted without a live
// connection.
var ErrNotConnected = errors.New("socket: not connected")

// State is the user-visible connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Options tunes the manager. Zero values fall back to sane defaults.
type Options struct {
	// URL is the websocket endpoint; the identity ID is appended as the
	// userId query parameter at dial time.
	URL string

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	// ReconnectMaxRetries bounds redial attempts after a transport loss.
	// Zero disables automatic reconnection.
	ReconnectMaxRetries int

	Dialer *websocket.Dialer
}

// Manager holds at most one live connection per signed-in identity. Connect
// is idempotent while a connection is live; Disconnect is idempotent while
// it is not.
type Manager struct {
	opts     Options
	presence *presence.Store

	mu    sync.Mutex
	conn  *Conn
	state State
	// reconnectGen invalidates an in-flight reconnect loop once a newer
	// connect or disconnect supersedes it.
	reconnectGen int

	handlersMu    sync.RWMutex
	onNewMessage  func(ev Event)
	onUnreadCount func(from string)
	onState       func(State)
}

// NewManager wires a manager to the presence store it feeds.
func NewManager(opts Options, pres *presence.Store) *Manager {
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		opts:     opts,
		presence: pres,
		state:    StateDisconnected,
	}
}

// Connect opens a connection registered for userID. If a connection is
// already live it is returned unchanged and no registration is re-sent.
func (m *Manager) Connect(ctx context.Context, userID string) (*Conn, error) {
	m.mu.Lock()
	if m.conn != nil {
		c := m.conn
		m.mu.Unlock()
		return c, nil
	}
	m.reconnectGen++
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	c, err := m.dial(ctx, userID)
	if err != nil {
		m.mu.Lock()
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	if m.conn != nil {
		// Lost the race against a concurrent Connect; keep the winner.
		existing := m.conn
		m.mu.Unlock()
		c.Close()
		return existing, nil
	}
	m.conn = c
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.register(c)
	log.Printf("Socket Manager: connected as user %s (conn %s)", userID, c.ID())
	return c, nil
}

// Current returns the live connection or nil. Never blocks, never dials.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Disconnect closes the live connection, if any. Must run before session
// teardown so a registered connection never outlives its credentials.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	m.reconnectGen++
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if c != nil {
		c.Close()
		log.Printf("Socket Manager: disconnected user %s (conn %s)", c.UserID(), c.ID())
	}
}

// Emit sends one event on the live connection.
func (m *Manager) Emit(eventType string, payload interface{}) error {
	c := m.Current()
	if c == nil {
		return ErrNotConnected
	}
	return c.Emit(eventType, payload)
}

// OnNewMessage registers the live-message handler. Passing nil deregisters.
func (m *Manager) OnNewMessage(fn func(ev Event)) {
	m.handlersMu.Lock()
	m.onNewMessage = fn
	m.handlersMu.Unlock()
}

// OnUnreadCount registers the unread-increment handler. Passing nil
// deregisters.
func (m *Manager) OnUnreadCount(fn func(from string)) {
	m.handlersMu.Lock()
	m.onUnreadCount = fn
	m.handlersMu.Unlock()
}

// OnStateChange registers an observer for connection-state transitions.
func (m *Manager) OnStateChange(fn func(State)) {
	m.handlersMu.Lock()
	m.onState = fn
	m.handlersMu.Unlock()
}

func (m *Manager) dial(ctx context.Context, userID string) (*Conn, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("socket: invalid URL %q: %w", m.opts.URL, err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	ws, _, err := m.opts.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("socket: dial %s: %w", u.Host, err)
	}

	c := &Conn{
		id:      uuid.NewString(),
		userID:  userID,
		ws:      ws,
		send:    make(chan []byte, 64),
		done:    make(chan struct{}),
		onFrame: m.dispatch,
		onClose: m.handleClose,
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

// register announces the identity once the transport is up. The server adds
// it to the global online set and fans the snapshot out to everyone.
func (m *Manager) register(c *Conn) {
	if err := c.Emit(EventAddUser, c.UserID()); err != nil {
		log.Printf("Socket Manager: failed to register presence for user %s: %v", c.UserID(), err)
	}
}

func (m *Manager) dispatch(ev Event) {
	switch ev.Type {
	case EventOnlineUsers:
		m.presence.ReplaceAll(ev.OnlineUsers)
	case EventUserConnected:
		m.presence.Add(ev.UserID)
	case EventUserDisconnected:
		m.presence.Remove(ev.UserID)
	case EventNewMessage:
		m.handlersMu.RLock()
		fn := m.onNewMessage
		m.handlersMu.RUnlock()
		if fn != nil {
			fn(ev)
		}
	case EventUnreadCountUpdate:
		m.handlersMu.RLock()
		fn := m.onUnreadCount
		m.handlersMu.RUnlock()
		if fn != nil {
			fn(ev.UnreadFrom)
		}
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.handlersMu.RLock()
	fn := m.onState
	m.handlersMu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

// handleClose runs once per connection when its read pump exits. Transport
// losses enter the bounded backoff loop; local closes do not.
func (m *Manager) handleClose(c *Conn, clientClosed bool) {
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if clientClosed || m.opts.ReconnectMaxRetries <= 0 {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return
	}
	m.reconnectGen++
	gen := m.reconnectGen
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	go m.reconnect(gen, c.UserID())
}

func (m *Manager) reconnect(gen int, userID string) {
	delay := m.opts.ReconnectBaseDelay
	for attempt := 1; attempt <= m.opts.ReconnectMaxRetries; attempt++ {
		time.Sleep(delay)

		m.mu.Lock()
		stale := m.reconnectGen != gen
		m.mu.Unlock()
		if stale {
			return
		}

		log.Printf("Socket Manager: reconnect attempt %d/%d for user %s", attempt, m.opts.ReconnectMaxRetries, userID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c, err := m.dial(ctx, userID)
		cancel()
		if err == nil {
			m.mu.Lock()
			if m.reconnectGen != gen || m.conn != nil {
				m.mu.Unlock()
				c.Close()
				return
			}
			m.conn = c
			m.setStateLocked(StateConnected)
			m.mu.Unlock()
			m.register(c)
			log.Printf("Socket Manager: reconnected user %s (conn %s)", userID, c.ID())
			return
		}
		log.Printf("Socket Manager: reconnect attempt %d failed: %v", attempt, err)

		delay *= 2
		if delay > m.opts.ReconnectMaxDelay {
			delay = m.opts.ReconnectMaxDelay
		}
	}

	m.mu.Lock()
	if m.reconnectGen == gen {
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()
	log.Printf("Socket Manager: giving up reconnecting user %s after %d attempts", userID, m.opts.ReconnectMaxRetries)
}
