package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"devlink-client/internal/models"
)

// ErrNoCredentials means no usable persisted session exists.
var ErrNoCredentials = errors.New("session: no persisted credentials")

// Credentials is the persisted session: the bearer token plus the identity
// snapshot needed to restore without re-hitting the login endpoint.
type Credentials struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

// CredStore persists credentials to a JSON file and doubles as the
// api.TokenSource for the REST client.
type CredStore struct {
	mu    sync.Mutex
	path  string
	creds Credentials
}

func NewCredStore(path string) *CredStore {
	return &CredStore{path: path}
}

// Token returns the current bearer token, empty when signed out.
func (c *CredStore) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.AccessToken
}

// SetToken installs a token without touching the identity snapshot. The
// OAuth callback path needs the token live before the profile fetch that
// completes the snapshot.
func (c *CredStore) SetToken(token string) {
	c.mu.Lock()
	c.creds.AccessToken = token
	c.mu.Unlock()
}

// Load reads persisted credentials from disk into memory. A missing file or
// an incomplete snapshot (any of ID, name, email absent) is
// ErrNoCredentials.
func (c *CredStore) Load() (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("session: read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("session: decode credentials: %w", err)
	}
	if creds.AccessToken == "" || creds.User.ID == "" || creds.User.Name == "" || creds.User.Email == "" {
		return Credentials{}, ErrNoCredentials
	}

	c.creds = creds
	return creds, nil
}

// Save persists credentials to disk and memory.
func (c *CredStore) Save(creds Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("session: create credentials dir: %w", err)
	}
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode credentials: %w", err)
	}
	if err := os.WriteFile(c.path, raw, 0o600); err != nil {
		return fmt.Errorf("session: write credentials: %w", err)
	}
	c.creds = creds
	return nil
}

// Clear wipes credentials from memory and disk.
func (c *CredStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = Credentials{}
	_ = os.Remove(c.path)
}
