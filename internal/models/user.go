package models

// User is the authenticated local identity or a peer profile as returned by
// the user endpoints. IDs are opaque strings minted by the backend.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`

	// CompletenessScore is only populated on the local user's own profile
	// (used by the OAuth callback flow to route onboarding).
	CompletenessScore int `json:"completenessScore,omitempty"`
}

// PresenceStatus is the live badge state derived from the presence store.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// Contact is one entry of the chat contact list: a peer snapshot plus the
// per-peer unread counter and the presence-derived badge.
type Contact struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Avatar      string         `json:"avatar,omitempty"`
	IsFollowing bool           `json:"isFollowing"`
	Status      PresenceStatus `json:"status"`
	UnreadCount int            `json:"unreadCount"`
}

// --- DTOs for auth operations ---

// RegisterRequest captures registration input.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginRequest captures login input.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// AuthResult is the payload of a successful login or registration.
type AuthResult struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
}
