package models

// Message is a chat message. The backend-persisted record is canonical;
// once appended to a conversation the client never edits or reorders it.
type Message struct {
	ID         string   `json:"id"`
	SenderID   string   `json:"senderId"`
	ReceiverID string   `json:"receiverId"`
	Text       string   `json:"text"`
	CreatedAt  JSONTime `json:"createdAt"`
	Read       bool     `json:"read"`
}

// SendMessageRequest is the body of the send-message endpoint.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required,max=4096"`
}
