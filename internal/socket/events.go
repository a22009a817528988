package socket

import (
	"encoding/json"
	"fmt"

	"devlink-client/internal/models"
)

// Event type constants. Names match the wire contract of the messaging
// server, not Go conventions.
const (
	// Server -> client.
	EventOnlineUsers       = "getOnlineUsers"
	EventUserConnected     = "userConnected"    // presence delta: one user came online
	EventUserDisconnected  = "userDisconnected" // presence delta: one user went offline
	EventNewMessage        = "newMessage"
	EventUnreadCountUpdate = "unreadCountUpdate"

	// Client -> server. EventOnlineUsers doubles as the client's request
	// for a fresh snapshot.
	EventAddUser     = "addUser"
	EventSendMessage = "send-message"
	EventMessageRead = "messageRead"
)

// Envelope wraps every frame on the socket. Type selects the payload shape.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OnlineUsersPayload carries the server's canonical online-user snapshot.
type OnlineUsersPayload []string

// UserPresencePayload carries a single-user presence delta.
type UserPresencePayload struct {
	UserID string `json:"userId"`
}

// UnreadCountPayload identifies the peer whose unread counter should grow.
type UnreadCountPayload struct {
	From string `json:"from"`
}

// SendMessagePayload is the low-latency delivery hint emitted alongside the
// REST persistence call.
type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// Event is one validated server push. Exactly one of the payload fields
// matching Type is populated.
type Event struct {
	Type        string
	OnlineUsers []string
	UserID      string // userConnected / userDisconnected
	Message     models.Message
	UnreadFrom  string
}

// ErrUnknownEvent marks frames whose type the client does not understand.
type ErrUnknownEvent struct {
	Type string
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown socket event type %q", e.Type)
}

// DecodeEvent validates one raw frame into a typed Event. Malformed frames
// come back as errors and must never reach application logic.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("malformed socket frame: %w", err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("socket frame missing type")
	}

	ev := Event{Type: env.Type}
	switch env.Type {
	case EventOnlineUsers:
		var ids OnlineUsersPayload
		if err := json.Unmarshal(env.Payload, &ids); err != nil {
			return Event{}, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		ev.OnlineUsers = ids

	case EventUserConnected, EventUserDisconnected:
		var p UserPresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if p.UserID == "" {
			return Event{}, fmt.Errorf("invalid %s payload: empty userId", env.Type)
		}
		ev.UserID = p.UserID

	case EventNewMessage:
		var m models.Message
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return Event{}, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if m.SenderID == "" {
			return Event{}, fmt.Errorf("invalid %s payload: empty senderId", env.Type)
		}
		ev.Message = m

	case EventUnreadCountUpdate:
		var p UnreadCountPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("invalid %s payload: %w", env.Type, err)
		}
		if p.From == "" {
			return Event{}, fmt.Errorf("invalid %s payload: empty from", env.Type)
		}
		ev.UnreadFrom = p.From

	default:
		return Event{}, &ErrUnknownEvent{Type: env.Type}
	}

	return ev, nil
}

// EncodeEvent builds the wire form of one client-emitted event.
func EncodeEvent(eventType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
