// Package session owns the authenticated identity and drives the socket
// connection lifecycle around it: a login, registration, OAuth callback, or
// restore enters the authenticated state and establishes the connection;
// logout tears the connection down before clearing credentials.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"devlink-client/internal/api"
	"devlink-client/internal/models"
	"devlink-client/internal/notify"
	"devlink-client/internal/presence"
	"devlink-client/internal/socket"

	"github.com/golang-jwt/jwt/v5"
)

// Status is the identity state.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
)

// Store holds the identity state machine and the collaborators it drives.
type Store struct {
	api      *api.Client
	creds    *CredStore
	socket   *socket.Manager
	presence *presence.Store
	notifier notify.Notifier

	status Status
	user   models.User
}

// NewStore wires a session store. Collaborators are injected; the store
// never reaches for globals.
func NewStore(apiClient *api.Client, creds *CredStore, sock *socket.Manager, pres *presence.Store, notifier notify.Notifier) *Store {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Store{
		api:      apiClient,
		creds:    creds,
		socket:   sock,
		presence: pres,
		notifier: notifier,
		status:   StatusAnonymous,
	}
}

// Status returns the current identity state.
func (s *Store) Status() Status { return s.status }

// User returns the identity snapshot; ok is false while anonymous.
func (s *Store) User() (models.User, bool) {
	return s.user, s.status == StatusAuthenticated
}

// Login authenticates with email and password. On success the credentials
// are persisted and the socket connection is established.
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.status = StatusAuthenticating

	res, err := s.api.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err != nil {
		s.status = StatusAnonymous
		s.notifier.Error("Login failed")
		return fmt.Errorf("session: login: %w", err)
	}

	s.completeAuth(ctx, *res)
	s.notifier.Success("Logged in successfully")
	return nil
}

// Register creates an account and signs in with it.
func (s *Store) Register(ctx context.Context, name, email, password string) error {
	s.status = StatusAuthenticating

	res, err := s.api.Register(ctx, models.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		s.status = StatusAnonymous
		s.notifier.Error("Signup failed")
		return fmt.Errorf("session: register: %w", err)
	}

	s.completeAuth(ctx, *res)
	s.notifier.Success("Account created successfully")
	return nil
}

// GoogleCallback completes the OAuth redirect path: the redirect hands over
// a token but no identity snapshot, so the profile is fetched with the token
// already installed. A failure leaves the session anonymous; callers route
// back to the login surface.
func (s *Store) GoogleCallback(ctx context.Context, token string) (*models.User, error) {
	s.status = StatusAuthenticating
	s.creds.SetToken(token)

	user, err := s.api.ProfileDetails(ctx)
	if err != nil {
		s.creds.SetToken("")
		s.status = StatusAnonymous
		s.notifier.Error("Login failed. Please try again.")
		return nil, fmt.Errorf("session: google callback: %w", err)
	}

	s.completeAuth(ctx, models.AuthResult{AccessToken: token, User: *user})
	return user, nil
}

// Restore re-enters the authenticated state from persisted credentials
// without re-hitting the login endpoint. State restore and socket connect
// are independent steps; a restored session still needs the connection or
// it would silently never receive presence and message pushes.
func (s *Store) Restore(ctx context.Context) error {
	creds, err := s.creds.Load()
	if err != nil {
		return err
	}
	if tokenExpired(creds.AccessToken) {
		s.creds.Clear()
		return ErrNoCredentials
	}

	s.user = creds.User
	s.status = StatusAuthenticated
	log.Printf("Session: restored user %s from persisted credentials", creds.User.ID)

	s.connect(ctx)
	return nil
}

// Logout invalidates the server-side session (best-effort), disconnects the
// socket before credential teardown, and clears the persisted identity and
// the presence set.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		// Best-effort: local teardown proceeds regardless.
		log.Printf("Session: server-side logout failed: %v", err)
	}

	s.socket.Disconnect()
	s.creds.Clear()
	s.presence.Clear()
	s.user = models.User{}
	s.status = StatusAnonymous
	s.notifier.Success("Logged out successfully")
}

func (s *Store) completeAuth(ctx context.Context, res models.AuthResult) {
	s.user = res.User
	s.status = StatusAuthenticated

	if err := s.creds.Save(Credentials{AccessToken: res.AccessToken, User: res.User}); err != nil {
		log.Printf("Session: failed to persist credentials: %v", err)
	}

	// The OAuth path may land while a connection is already live; then the
	// identity is re-registered on the existing connection instead.
	if c := s.socket.Current(); c != nil {
		if err := c.Emit(socket.EventAddUser, s.user.ID); err != nil {
			log.Printf("Session: failed to re-register presence: %v", err)
		}
		return
	}
	s.connect(ctx)
}

// connect establishes the live connection. Failures are silent apart from
// the log line: presence and live messaging simply stay off until a later
// successful connect.
func (s *Store) connect(ctx context.Context) {
	if _, err := s.socket.Connect(ctx, s.user.ID); err != nil {
		log.Printf("Session: socket connect failed for user %s: %v", s.user.ID, err)
	}
}

// tokenExpired checks the exp claim without verifying the signature; the
// client holds no signing key and the server re-validates every request.
func tokenExpired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
