// Package backendtest is an in-process, in-memory stand-in for the DevLink
// backend, implementing exactly as much of the REST and socket contract as
// the client exercises. Tests dial it like the real thing.
package backendtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"devlink-client/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

type account struct {
	models.User
	hashedPassword string
}

// Server is one stub backend instance. State lives in memory and dies with
// the instance, keeping tests hermetic.
type Server struct {
	ts        *httptest.Server
	jwtSecret []byte
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	users    map[string]*account // by ID
	byEmail  map[string]*account
	messages []*models.Message
	unread   map[string]map[string]int // receiver -> sender -> count
	clients  map[string]map[*wsClient]bool
}

// New starts a stub backend on an ephemeral port.
func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		jwtSecret: []byte("backendtest-secret"),
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		users:     make(map[string]*account),
		byEmail:   make(map[string]*account),
		unread:    make(map[string]map[string]int),
		clients:   make(map[string]map[*wsClient]bool),
	}

	r := gin.New()
	r.Use(cors.Default())

	r.GET("/socket", s.handleSocket)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/users/register", s.handleRegister)
		apiV1.POST("/users/login", s.handleLogin)

		authed := apiV1.Group("/")
		authed.Use(s.authMiddleware())
		{
			authed.GET("/users/profile-details", s.handleProfileDetails)
			authed.POST("/users/logout", s.handleLogout)
			authed.GET("/messages/users", s.handleChatUsers)
			authed.GET("/messages/messages", s.handleMessageHistory)
			authed.POST("/messages/send-message", s.handleSendMessage)
			authed.PUT("/messages/read", s.handleMarkRead)
		}
	}

	s.ts = httptest.NewServer(r)
	return s
}

// URL is the REST base URL.
func (s *Server) URL() string { return s.ts.URL }

// SocketURL is the websocket endpoint.
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/socket"
}

// Close shuts the stub down.
func (s *Server) Close() {
	s.mu.Lock()
	for _, conns := range s.clients {
		for c := range conns {
			c.close()
		}
	}
	s.clients = make(map[string]map[*wsClient]bool)
	s.mu.Unlock()
	s.ts.Close()
}

// SeedUser registers an account directly, bypassing the REST surface.
func (s *Server) SeedUser(name, email, password string) models.User {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	acct := &account{
		User:           models.User{ID: uuid.NewString(), Name: name, Email: email},
		hashedPassword: string(hashed),
	}
	s.mu.Lock()
	s.users[acct.ID] = acct
	s.byEmail[acct.Email] = acct
	s.mu.Unlock()
	return acct.User
}

// TokenFor mints a valid bearer token for an existing user, letting tests
// exercise the OAuth-callback path without a browser redirect.
func (s *Server) TokenFor(userID string) string {
	token, err := s.mintToken(userID)
	if err != nil {
		panic(err)
	}
	return token
}

// UnreadFor reports the stored unread count from sender to receiver.
func (s *Server) UnreadFor(receiverID, senderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[receiverID][senderID]
}

// --- auth helpers ---

type stubClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func (s *Server) mintToken(userID string) (string, error) {
	claims := &stubClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := strings.Fields(c.GetHeader("Authorization"))
		if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header is not provided"})
			return
		}

		claims := &stubClaims{}
		token, err := jwt.ParseWithClaims(fields[1], claims, func(t *jwt.Token) (interface{}, error) {
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Next()
	}
}

// --- REST handlers ---

func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}

	s.mu.Lock()
	if _, exists := s.byEmail[req.Email]; exists {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"message": "Email already exists"})
		return
	}
	s.mu.Unlock()

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to process registration"})
		return
	}
	acct := &account{
		User:           models.User{ID: uuid.NewString(), Name: req.Name, Email: req.Email},
		hashedPassword: string(hashed),
	}
	s.mu.Lock()
	s.users[acct.ID] = acct
	s.byEmail[acct.Email] = acct
	s.mu.Unlock()

	token, err := s.mintToken(acct.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": models.AuthResult{AccessToken: token, User: acct.User}})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}

	s.mu.Lock()
	acct, ok := s.byEmail[req.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword([]byte(acct.hashedPassword), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}

	token, err := s.mintToken(acct.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": models.AuthResult{AccessToken: token, User: acct.User}})
}

func (s *Server) handleProfileDetails(c *gin.Context) {
	s.mu.Lock()
	acct, ok := s.users[c.GetString("userID")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": acct.User})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": nil})
}

func (s *Server) handleChatUsers(c *gin.Context) {
	me := c.GetString("userID")

	s.mu.Lock()
	contacts := make([]models.Contact, 0, len(s.users))
	for id, acct := range s.users {
		if id == me {
			continue
		}
		contacts = append(contacts, models.Contact{
			ID:          acct.ID,
			Name:        acct.Name,
			Avatar:      acct.Avatar,
			IsFollowing: true,
			UnreadCount: s.unread[me][id],
		})
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"data": contacts})
}

func (s *Server) handleMessageHistory(c *gin.Context) {
	me := c.GetString("userID")
	peer := c.Query("id")
	if peer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "id query parameter is required"})
		return
	}

	s.mu.Lock()
	history := make([]models.Message, 0)
	for _, m := range s.messages {
		if (m.SenderID == me && m.ReceiverID == peer) || (m.SenderID == peer && m.ReceiverID == me) {
			history = append(history, *m)
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	me := c.GetString("userID")
	peer := c.Query("id")
	if peer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "id query parameter is required"})
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request data"})
		return
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		SenderID:   me,
		ReceiverID: peer,
		Text:       req.Text,
		CreatedAt:  models.JSONTime(time.Now().UTC()),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if s.unread[peer] == nil {
		s.unread[peer] = make(map[string]int)
	}
	s.unread[peer][me]++
	s.mu.Unlock()

	s.pushToUser(peer, "unreadCountUpdate", map[string]string{"from": me})

	c.JSON(http.StatusOK, gin.H{"data": msg})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	me := c.GetString("userID")

	s.mu.Lock()
	for _, m := range s.messages {
		if m.ReceiverID == me {
			m.Read = true
		}
	}
	delete(s.unread, me)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"data": nil})
}
