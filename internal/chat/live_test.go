package chat

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"devlink-client/internal/api"
	"devlink-client/internal/backendtest"
	"devlink-client/internal/models"
	"devlink-client/internal/presence"
	"devlink-client/internal/session"
	"devlink-client/internal/socket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientStack is one fully wired client: REST, credentials, presence, socket
// and conversation view, the same composition the CLI builds.
type clientStack struct {
	user     models.User
	presence *presence.Store
	socket   *socket.Manager
	session  *session.Store
	view     *View
}

func newClientStack(t *testing.T, backend *backendtest.Server, name, email, password string) *clientStack {
	t.Helper()

	user := backend.SeedUser(name, email, password)

	creds := session.NewCredStore(filepath.Join(t.TempDir(), "credentials.json"))
	pres := presence.NewStore()
	sock := socket.NewManager(socket.Options{URL: backend.SocketURL()}, pres)
	t.Cleanup(sock.Disconnect)
	client := api.NewClient(backend.URL(), creds, nil)
	sess := session.NewStore(client, creds, sock, pres, nil)

	require.NoError(t, sess.Login(context.Background(), email, password))

	view := NewView(client, sock, pres, user, nil)
	require.NoError(t, view.RefreshContacts(context.Background()))

	return &clientStack{user: user, presence: pres, socket: sock, session: sess, view: view}
}

func (s *clientStack) unreadFrom(peerID string) int {
	for _, c := range s.view.Contacts() {
		if c.ID == peerID {
			return c.UnreadCount
		}
	}
	return -1
}

func TestLive_MessageRoundTrip(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	alice := newClientStack(t, backend, "Alice", "alice@devlink.dev", "secret12")
	bob := newClientStack(t, backend, "Bob", "bob@devlink.dev", "secret12")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bob.view.Attach(ctx)
	defer bob.view.Close()

	// Both registered; each side sees the other online.
	require.Eventually(t, func() bool {
		return alice.presence.IsOnline(bob.user.ID) && bob.presence.IsOnline(alice.user.ID)
	}, 2*time.Second, 20*time.Millisecond)

	// Bob is looking at the conversation with Alice when she writes.
	require.NoError(t, alice.view.RefreshContacts(ctx))
	require.NoError(t, bob.view.SelectPeer(ctx, alice.user.ID))
	require.NoError(t, alice.view.SelectPeer(ctx, bob.user.ID))

	sent, err := alice.view.SendMessage(ctx, "hello bob")
	require.NoError(t, err)

	// The live push lands in Bob's open conversation with the canonical
	// stored record.
	require.Eventually(t, func() bool {
		conv, ok := bob.view.Conversation()
		if !ok {
			return false
		}
		for _, m := range conv.Messages {
			if m.ID == sent.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	// The counter event for the open conversation is suppressed.
	assert.Zero(t, bob.unreadFrom(alice.user.ID))

	// Alice's own view holds her send exactly once.
	conv, ok := alice.view.Conversation()
	require.True(t, ok)
	count := 0
	for _, m := range conv.Messages {
		if m.ID == sent.ID {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLive_UnreadAccumulatesUntilConversationOpens(t *testing.T) {
	backend := backendtest.New()
	defer backend.Close()

	alice := newClientStack(t, backend, "Alice", "alice@devlink.dev", "secret12")
	bob := newClientStack(t, backend, "Bob", "bob@devlink.dev", "secret12")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bob.view.Attach(ctx)
	defer bob.view.Close()

	require.Eventually(t, func() bool {
		return bob.presence.IsOnline(alice.user.ID)
	}, 2*time.Second, 20*time.Millisecond)

	// Bob has no conversation open; Alice writes twice.
	require.NoError(t, alice.view.RefreshContacts(ctx))
	require.NoError(t, alice.view.SelectPeer(ctx, bob.user.ID))
	_, err := alice.view.SendMessage(ctx, "first")
	require.NoError(t, err)
	_, err = alice.view.SendMessage(ctx, "second")
	require.NoError(t, err)

	// Each message bumps the counter exactly once.
	require.Eventually(t, func() bool {
		return bob.unreadFrom(alice.user.ID) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, backend.UnreadFor(bob.user.ID, alice.user.ID))

	// Opening the conversation loads both messages and completes the read
	// round trip on the server too.
	require.NoError(t, bob.view.SelectPeer(ctx, alice.user.ID))
	conv, ok := bob.view.Conversation()
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "first", conv.Messages[0].Text)
	assert.Equal(t, "second", conv.Messages[1].Text)

	assert.Zero(t, bob.unreadFrom(alice.user.ID))
	assert.Zero(t, backend.UnreadFor(bob.user.ID, alice.user.ID))

	// The read signal marked Alice's copies read.
	require.Eventually(t, func() bool {
		history, err := alice.view.api.MessageHistory(ctx, bob.user.ID)
		if err != nil {
			return false
		}
		for _, m := range history {
			if !m.Read {
				return false
			}
		}
		return len(history) == 2
	}, 2*time.Second, 20*time.Millisecond)
}
