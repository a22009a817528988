package backendtest

import (
	"encoding/json"
	"sync"
	"time"

	"devlink-client/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsClient is one connected socket with serialized writes.
type wsClient struct {
	conn   *websocket.Conn
	userID string

	writeMu sync.Mutex
	once    sync.Once
}

func (c *wsClient) send(eventType string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		raw = b
	}
	frame, err := json.Marshal(map[string]interface{}{"type": eventType, "payload": raw})
	if err != nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsClient) close() {
	c.once.Do(func() { _ = c.conn.Close() })
}

type inboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleSocket(c *gin.Context) {
	userID := c.Query("userId")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn, userID: userID}
	s.mu.Lock()
	if s.clients[userID] == nil {
		s.clients[userID] = make(map[*wsClient]bool)
	}
	s.clients[userID][client] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients[userID], client)
		if len(s.clients[userID]) == 0 {
			delete(s.clients, userID)
		}
		s.mu.Unlock()
		client.close()
		s.broadcastOnlineUsers()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		s.handleFrame(client, frame)
	}
}

func (s *Server) handleFrame(client *wsClient, frame inboundFrame) {
	switch frame.Type {
	case "addUser":
		var id string
		if err := json.Unmarshal(frame.Payload, &id); err != nil || id == "" {
			return
		}
		s.broadcastOnlineUsers()

	case "getOnlineUsers":
		client.send("getOnlineUsers", s.onlineUserIDs())

	case "send-message":
		var p struct {
			ReceiverID string `json:"receiverId"`
			Text       string `json:"text"`
		}
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.ReceiverID == "" {
			return
		}
		s.pushToUser(p.ReceiverID, "newMessage", s.relayedMessage(client.userID, p.ReceiverID, p.Text))

	case "messageRead":
		var peerID string
		if err := json.Unmarshal(frame.Payload, &peerID); err != nil || peerID == "" {
			return
		}
		s.mu.Lock()
		for _, m := range s.messages {
			if m.SenderID == peerID && m.ReceiverID == client.userID {
				m.Read = true
			}
		}
		s.mu.Unlock()
	}
}

// relayedMessage finds the persisted record matching the delivery hint so
// the push carries the canonical ID; a hint with no stored counterpart gets
// a synthesized record.
func (s *Server) relayedMessage(senderID, receiverID, text string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && m.Text == text {
			return *m
		}
	}
	return models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  models.JSONTime(time.Now().UTC()),
	}
}

func (s *Server) onlineUserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) broadcastOnlineUsers() {
	ids := s.onlineUserIDs()

	s.mu.Lock()
	targets := make([]*wsClient, 0)
	for _, conns := range s.clients {
		for c := range conns {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.send("getOnlineUsers", ids)
	}
}

func (s *Server) pushToUser(userID, eventType string, payload interface{}) {
	s.mu.Lock()
	targets := make([]*wsClient, 0, len(s.clients[userID]))
	for c := range s.clients[userID] {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.send(eventType, payload)
	}
}
