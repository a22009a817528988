package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"devlink-client/internal/models"
	"devlink-client/internal/presence"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsStub is a bare websocket endpoint that records inbound frames and lets
// tests push frames or kill connections from the server side.
type wsStub struct {
	ts       *httptest.Server
	upgrader websocket.Upgrader
	frames   chan Envelope

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSStub(t *testing.T) *wsStub {
	t.Helper()
	s := &wsStub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		frames:   make(chan Envelope, 16),
	}
	s.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(raw, &env) == nil {
				s.frames <- env
			}
		}
	}))
	t.Cleanup(s.ts.Close)
	return s
}

func (s *wsStub) url() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

func (s *wsStub) push(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	frame, err := EncodeEvent(eventType, payload)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns, "no connection to push to")
	require.NoError(t, s.conns[len(s.conns)-1].WriteMessage(websocket.TextMessage, frame))
}

func (s *wsStub) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *wsStub) waitFrame(t *testing.T, eventType string) Envelope {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case env := <-s.frames:
			if env.Type == eventType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", eventType)
		}
	}
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	stub := newWSStub(t)
	pres := presence.NewStore()
	m := NewManager(Options{URL: stub.url()}, pres)

	ctx := context.Background()
	first, err := m.Connect(ctx, "user-a")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.Connect(ctx, "user-a")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first, m.Current())
	assert.Equal(t, StateConnected, m.State())

	// Exactly one registration goes out.
	stub.waitFrame(t, EventAddUser)
	select {
	case env := <-stub.frames:
		if env.Type == EventAddUser {
			t.Fatal("duplicate addUser registration")
		}
	case <-time.After(200 * time.Millisecond):
	}

	m.Disconnect()
	assert.Nil(t, m.Current())
	assert.Equal(t, StateDisconnected, m.State())
	m.Disconnect() // idempotent
}

func TestManager_EmitWithoutConnection(t *testing.T) {
	m := NewManager(Options{URL: "ws://localhost:1"}, presence.NewStore())
	assert.ErrorIs(t, m.Emit(EventMessageRead, "peer"), ErrNotConnected)
}

func TestManager_DispatchesEvents(t *testing.T) {
	stub := newWSStub(t)
	pres := presence.NewStore()
	m := NewManager(Options{URL: stub.url()}, pres)

	gotMessages := make(chan Event, 1)
	gotUnread := make(chan string, 1)
	m.OnNewMessage(func(ev Event) { gotMessages <- ev })
	m.OnUnreadCount(func(from string) { gotUnread <- from })

	_, err := m.Connect(context.Background(), "user-a")
	require.NoError(t, err)
	defer m.Disconnect()
	stub.waitFrame(t, EventAddUser)

	stub.push(t, EventOnlineUsers, []string{"user-a", "user-b"})
	require.Eventually(t, func() bool { return pres.IsOnline("user-b") }, 2*time.Second, 10*time.Millisecond)

	stub.push(t, EventUserDisconnected, UserPresencePayload{UserID: "user-b"})
	require.Eventually(t, func() bool { return !pres.IsOnline("user-b") }, 2*time.Second, 10*time.Millisecond)

	stub.push(t, EventUnreadCountUpdate, UnreadCountPayload{From: "user-b"})
	select {
	case from := <-gotUnread:
		assert.Equal(t, "user-b", from)
	case <-time.After(2 * time.Second):
		t.Fatal("unread handler not invoked")
	}

	stub.push(t, EventNewMessage, models.Message{ID: "m1", SenderID: "user-b", ReceiverID: "user-a", Text: "hi"})
	select {
	case ev := <-gotMessages:
		assert.Equal(t, "m1", ev.Message.ID)
		assert.Equal(t, "hi", ev.Message.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("message handler not invoked")
	}

	// Malformed frames are dropped at the boundary, later frames still flow.
	stub.push(t, "bogusEvent", map[string]int{"x": 1})
	stub.push(t, EventUserConnected, UserPresencePayload{UserID: "user-c"})
	require.Eventually(t, func() bool { return pres.IsOnline("user-c") }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ReconnectsAfterTransportLoss(t *testing.T) {
	stub := newWSStub(t)
	pres := presence.NewStore()
	m := NewManager(Options{
		URL:                 stub.url(),
		ReconnectBaseDelay:  10 * time.Millisecond,
		ReconnectMaxRetries: 5,
	}, pres)

	var stateMu sync.Mutex
	var states []State
	m.OnStateChange(func(s State) {
		stateMu.Lock()
		states = append(states, s)
		stateMu.Unlock()
	})

	_, err := m.Connect(context.Background(), "user-a")
	require.NoError(t, err)
	defer m.Disconnect()
	stub.waitFrame(t, EventAddUser)

	stub.dropAll()

	// The manager redials and re-registers the identity.
	stub.waitFrame(t, EventAddUser)
	require.Eventually(t, func() bool { return m.State() == StateConnected }, 2*time.Second, 10*time.Millisecond)

	stateMu.Lock()
	defer stateMu.Unlock()
	assert.Contains(t, states, StateReconnecting)
}

func TestManager_NoReconnectAfterDisconnect(t *testing.T) {
	stub := newWSStub(t)
	m := NewManager(Options{
		URL:                 stub.url(),
		ReconnectBaseDelay:  10 * time.Millisecond,
		ReconnectMaxRetries: 5,
	}, presence.NewStore())

	_, err := m.Connect(context.Background(), "user-a")
	require.NoError(t, err)
	stub.waitFrame(t, EventAddUser)

	m.Disconnect()

	select {
	case env := <-stub.frames:
		t.Fatalf("unexpected frame after disconnect: %s", env.Type)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, StateDisconnected, m.State())
}
