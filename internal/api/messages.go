package api

import (
	"context"
	"net/http"
	"net/url"

	"devlink-client/internal/models"
)

// ChatUsers returns the contact list with per-peer unread counts. Presence
// status is not part of the response; callers derive it from the presence
// store.
func (c *Client) ChatUsers(ctx context.Context) ([]models.Contact, error) {
	var out []models.Contact
	if err := c.do(ctx, http.MethodGet, "/api/v1/messages/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MessageHistory returns the full ordered history with one peer.
func (c *Client) MessageHistory(ctx context.Context, peerID string) ([]models.Message, error) {
	q := url.Values{"id": {peerID}}
	var out []models.Message
	if err := c.do(ctx, http.MethodGet, "/api/v1/messages/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage persists a message to peerID and returns the canonical stored
// record, including the server-assigned ID and timestamp.
func (c *Client) SendMessage(ctx context.Context, peerID, text string) (*models.Message, error) {
	q := url.Values{"id": {peerID}}
	var out models.Message
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages/send-message", q, models.SendMessageRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks the open conversation's messages read server-side.
func (c *Client) MarkRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/v1/messages/read", nil, nil, nil)
}
