// Package chat materializes the active conversation from two independent
// sources: the REST history fetch and live push events on the shared socket.
// It owns the contact list with per-peer unread counters and is the only
// mutator of the open conversation's message sequence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"devlink-client/internal/api"
	"devlink-client/internal/models"
	"devlink-client/internal/notify"
	"devlink-client/internal/presence"
	"devlink-client/internal/socket"
)

var (
	// ErrEmptyMessage rejects blank or whitespace-only input.
	ErrEmptyMessage = errors.New("chat: message text is empty")
	// ErrNoConversation means no peer is selected.
	ErrNoConversation = errors.New("chat: no open conversation")
	// ErrStaleSelection means a history fetch resolved after the user
	// already switched to a different peer; its result was discarded.
	ErrStaleSelection = errors.New("chat: stale peer selection discarded")
	// ErrUnknownPeer means the peer is not in the contact list.
	ErrUnknownPeer = errors.New("chat: unknown peer")
)

// Conversation is the open chat: the peer snapshot and the chronological,
// append-only message sequence.
type Conversation struct {
	Peer     models.Contact
	Messages []models.Message
}

// View is the conversation view model for one chat screen.
type View struct {
	api      *api.Client
	socket   *socket.Manager
	presence *presence.Store
	self     models.User
	notifier notify.Notifier

	mu         sync.Mutex
	contacts   []models.Contact
	contactIdx map[string]int

	activePeer string
	conv       *Conversation
	seen       map[string]struct{} // message IDs already appended

	// pendingCounted tracks unread increments already applied from a
	// newMessage push, so a trailing unreadCountUpdate for the same
	// message does not double count.
	pendingCounted map[string]int

	watchStop chan struct{}
	watchDone chan struct{}

	onUpdate func()
}

// SetOnUpdate registers a callback fired after live pushes or refreshes
// mutate view state, letting a UI re-render without polling.
func (v *View) SetOnUpdate(fn func()) {
	v.mu.Lock()
	v.onUpdate = fn
	v.mu.Unlock()
}

func (v *View) notifyUpdate() {
	v.mu.Lock()
	fn := v.onUpdate
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// NewView builds a view model for the signed-in user self.
func NewView(apiClient *api.Client, sock *socket.Manager, pres *presence.Store, self models.User, notifier notify.Notifier) *View {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &View{
		api:            apiClient,
		socket:         sock,
		presence:       pres,
		self:           self,
		notifier:       notifier,
		contactIdx:     make(map[string]int),
		pendingCounted: make(map[string]int),
	}
}

// Attach registers the live listeners and starts refreshing the contact
// list on presence changes. Call Close when the screen goes away.
func (v *View) Attach(ctx context.Context) {
	v.socket.OnNewMessage(v.handleNewMessage)
	v.socket.OnUnreadCount(v.handleUnreadCount)

	v.watchStop = make(chan struct{})
	v.watchDone = make(chan struct{})
	changes := v.presence.Subscribe()
	go func() {
		defer close(v.watchDone)
		for {
			select {
			case <-changes:
				if err := v.RefreshContacts(ctx); err != nil {
					log.Printf("Chat View: contact refresh after presence change failed: %v", err)
				}
			case <-v.watchStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close deregisters the live listeners so handlers do not leak across
// screens or peer switches.
func (v *View) Close() {
	v.socket.OnNewMessage(nil)
	v.socket.OnUnreadCount(nil)
	if v.watchStop != nil {
		close(v.watchStop)
		<-v.watchDone
		v.watchStop = nil
	}
}

// RefreshContacts re-fetches the peer list. Unread counts come from the
// server; presence badges are derived from the presence store at read time.
func (v *View) RefreshContacts(ctx context.Context) error {
	contacts, err := v.api.ChatUsers(ctx)
	if err != nil {
		return fmt.Errorf("chat: fetch contacts: %w", err)
	}

	v.mu.Lock()
	v.contacts = contacts
	v.contactIdx = make(map[string]int, len(contacts))
	for i := range contacts {
		v.contactIdx[contacts[i].ID] = i
	}
	v.mu.Unlock()

	v.notifyUpdate()
	return nil
}

// Contacts returns the contact list with the live presence badge applied.
// The badge is computed per call; presence is volatile and never cached.
func (v *View) Contacts() []models.Contact {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Contact, len(v.contacts))
	copy(out, v.contacts)
	for i := range out {
		out[i].Status = v.statusFor(out[i].ID)
	}
	return out
}

// FilterContacts returns contacts whose name contains term,
// case-insensitively.
func (v *View) FilterContacts(term string) []models.Contact {
	term = strings.ToLower(term)
	all := v.Contacts()
	out := make([]models.Contact, 0, len(all))
	for _, c := range all {
		if strings.Contains(strings.ToLower(c.Name), term) {
			out = append(out, c)
		}
	}
	return out
}

// Conversation returns a copy of the open conversation, ok reporting
// whether one is open.
func (v *View) Conversation() (Conversation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conv == nil {
		return Conversation{}, false
	}
	out := Conversation{Peer: v.conv.Peer, Messages: make([]models.Message, len(v.conv.Messages))}
	copy(out.Messages, v.conv.Messages)
	out.Peer.Status = v.statusFor(out.Peer.ID)
	return out, true
}

// SelectPeer opens the conversation with peerID: fetches the full history,
// then completes the read-acknowledgement round trip and resets the peer's
// unread counter. If a different peer is selected while the fetch is in
// flight, the late result is discarded and ErrStaleSelection is returned.
func (v *View) SelectPeer(ctx context.Context, peerID string) error {
	v.mu.Lock()
	idx, ok := v.contactIdx[peerID]
	if !ok {
		v.mu.Unlock()
		return ErrUnknownPeer
	}
	peer := v.contacts[idx]
	prevPeer := v.activePeer
	v.activePeer = peerID
	v.mu.Unlock()

	history, err := v.api.MessageHistory(ctx, peerID)
	if err != nil {
		v.mu.Lock()
		if v.activePeer == peerID {
			// Conversation stays in its prior state.
			v.activePeer = prevPeer
		}
		v.mu.Unlock()
		v.notifier.Error("Something went wrong while starting the chat.")
		return fmt.Errorf("chat: fetch history for %s: %w", peerID, err)
	}

	v.mu.Lock()
	if v.activePeer != peerID {
		// The user moved on; the newly selected conversation must not be
		// overwritten by this late response.
		v.mu.Unlock()
		return ErrStaleSelection
	}
	conv := &Conversation{Peer: peer}
	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		conv.Messages = append(conv.Messages, m)
	}
	v.conv = conv
	v.seen = seen
	delete(v.pendingCounted, peerID)
	v.mu.Unlock()

	return v.acknowledgeRead(ctx, peerID)
}

// acknowledgeRead completes the read round trip: the REST call marks the
// messages read server-side, the live signal updates the peer's delivery
// receipts, and only then does the local counter reset.
func (v *View) acknowledgeRead(ctx context.Context, peerID string) error {
	if err := v.api.MarkRead(ctx); err != nil {
		// Counter stays stale until the next successful sync.
		log.Printf("Chat View: mark-read for %s failed: %v", peerID, err)
		return fmt.Errorf("chat: mark read: %w", err)
	}

	if err := v.socket.Emit(socket.EventMessageRead, peerID); err != nil {
		log.Printf("Chat View: messageRead emit for %s failed: %v", peerID, err)
	}

	v.mu.Lock()
	if idx, ok := v.contactIdx[peerID]; ok {
		v.contacts[idx].UnreadCount = 0
	}
	v.mu.Unlock()
	return nil
}

// SendMessage persists text to the open conversation's peer, appends the
// canonical stored record, and emits the low-latency delivery hint. The
// REST call is the source of truth; a dropped emit only delays the peer's
// real-time view.
func (v *View) SendMessage(ctx context.Context, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	v.mu.Lock()
	if v.conv == nil {
		v.mu.Unlock()
		return nil, ErrNoConversation
	}
	peerID := v.conv.Peer.ID
	v.mu.Unlock()

	msg, err := v.api.SendMessage(ctx, peerID, text)
	if err != nil {
		// No optimistic append, nothing to roll back; the user retries.
		v.notifier.Error("Failed to send message")
		return nil, fmt.Errorf("chat: send message: %w", err)
	}

	if err := v.socket.Emit(socket.EventSendMessage, socket.SendMessagePayload{ReceiverID: peerID, Text: text}); err != nil {
		log.Printf("Chat View: send-message emit failed: %v", err)
	}

	v.mu.Lock()
	if v.conv != nil && v.conv.Peer.ID == peerID {
		v.appendLocked(*msg)
	}
	v.mu.Unlock()
	return msg, nil
}

// handleNewMessage applies one live message push. While a conversation is
// open, a message to or from its peer is appended; messages for other peers
// bump that peer's unread counter instead. With no conversation open the
// push is ignored, the unreadCountUpdate event carries the counter.
func (v *View) handleNewMessage(ev socket.Event) {
	msg := ev.Message

	v.mu.Lock()
	if v.conv == nil {
		v.mu.Unlock()
		return
	}
	peerID := v.conv.Peer.ID
	switch {
	case msg.SenderID == peerID || msg.ReceiverID == peerID:
		v.appendLocked(msg)
	case msg.SenderID == v.self.ID:
	default:
		if idx, ok := v.contactIdx[msg.SenderID]; ok {
			v.contacts[idx].UnreadCount++
			v.pendingCounted[msg.SenderID]++
		}
	}
	v.mu.Unlock()

	v.notifyUpdate()
}

// handleUnreadCount applies one live unread increment. Increments for the
// active peer are suppressed (its messages are appended and immediately
// read), as are increments already applied via a newMessage push.
func (v *View) handleUnreadCount(from string) {
	v.mu.Lock()
	switch {
	case from == v.activePeer:
	case v.pendingCounted[from] > 0:
		v.pendingCounted[from]--
	default:
		if idx, ok := v.contactIdx[from]; ok {
			v.contacts[idx].UnreadCount++
		}
	}
	v.mu.Unlock()

	v.notifyUpdate()
}

// appendLocked appends a message to the open conversation, de-duplicating
// by ID: the same message may arrive via the history fetch and a
// concurrent live push.
func (v *View) appendLocked(msg models.Message) {
	if _, dup := v.seen[msg.ID]; dup {
		return
	}
	v.seen[msg.ID] = struct{}{}
	v.conv.Messages = append(v.conv.Messages, msg)
}

func (v *View) statusFor(id string) models.PresenceStatus {
	if v.presence.IsOnline(id) {
		return models.StatusOnline
	}
	return models.StatusOffline
}
