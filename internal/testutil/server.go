// Package testutil runs an in-process stand-in for the remote LexDrum
// service, implementing the same endpoints and error bodies so gateway and
// end-to-end tests exercise real HTTP, real bearer tokens and real failure
// shapes.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type userRecord struct {
	ID           int64
	PasswordHash []byte
	IsAdmin      bool
}

type conversation struct {
	ID        int64
	Owner     string
	CreatedAt time.Time
	Summary   string
	Messages  []messageItem
}

type messageItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Server is the fake service. Zero-value behavior is a healthy service with
// no users; failure flags flip individual endpoints into 500s.
type Server struct {
	URL string

	ts     *httptest.Server
	secret []byte

	mu          sync.Mutex
	users       map[string]*userRecord
	nextUserID  int64
	convs       map[int64]*conversation
	convOrder   []int64
	nextConvID  int64
	idempotency map[string]int64
	ingested    []string

	// ReplyFunc computes the assistant reply for a sent message. Defaults
	// to a fixed acknowledgement.
	ReplyFunc func(message string) string

	// InsertedChunks is returned by the ingest endpoint.
	InsertedChunks int

	FailChat    bool
	FailList    bool
	FailHistory bool
}

func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		secret:         []byte("testutil-secret"),
		users:          map[string]*userRecord{},
		convs:          map[int64]*conversation{},
		nextUserID:     1,
		nextConvID:     1,
		idempotency:    map[string]int64{},
		InsertedChunks: 12,
	}

	r := gin.New()
	r.POST("/register", s.handleRegister)
	r.POST("/login", s.handleLogin)

	authed := r.Group("/")
	authed.Use(s.authRequired)
	authed.POST("/chat", s.handleChat)
	authed.GET("/conversations", s.handleListConversations)
	authed.GET("/conversations/:id", s.handleHistory)

	admin := authed.Group("/admin")
	admin.Use(s.adminRequired)
	admin.POST("/ingest_legislation", s.handleIngest)
	admin.GET("/ingested_urls", s.handleIngestedURLs)

	s.ts = httptest.NewServer(r)
	s.URL = s.ts.URL
	return s
}

func (s *Server) Close() { s.ts.Close() }

// AddUser registers an account directly, skipping the HTTP round trip.
func (s *Server) AddUser(username, password string, admin bool) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &userRecord{ID: s.nextUserID, PasswordHash: hash, IsAdmin: admin}
	s.nextUserID++
}

// SetNextConversationID fixes the id minted for the next new conversation.
func (s *Server) SetNextConversationID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextConvID = id
}

// SeedConversation installs a conversation with an existing transcript.
func (s *Server) SeedConversation(owner string, id int64, summary string, messages ...[2]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := &conversation{ID: id, Owner: owner, CreatedAt: time.Now(), Summary: summary}
	for _, m := range messages {
		conv.Messages = append(conv.Messages, messageItem{Role: m[0], Content: m[1], CreatedAt: time.Now()})
	}
	s.convs[id] = conv
	s.convOrder = append(s.convOrder, id)
	if id >= s.nextConvID {
		s.nextConvID = id + 1
	}
}

func fail(c *gin.Context, status int, detail string) {
	c.JSON(status, gin.H{"detail": detail})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "username and password required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		fail(c, http.StatusBadRequest, "username already registered")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		fail(c, http.StatusInternalServerError, "hashing failed")
		return
	}
	rec := &userRecord{ID: s.nextUserID, PasswordHash: hash}
	s.nextUserID++
	s.users[req.Username] = rec

	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "username": req.Username})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	rec := s.users[req.Username]
	s.mu.Unlock()
	if rec == nil || bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(req.Password)) != nil {
		fail(c, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	claims := jwt.MapClaims{
		"sub":   req.Username,
		"admin": rec.IsAdmin,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to sign token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"is_admin":     rec.IsAdmin,
	})
}

func (s *Server) authRequired(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		fail(c, http.StatusUnauthorized, "Not authenticated")
		c.Abort()
		return
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		fail(c, http.StatusUnauthorized, "Invalid or expired token")
		c.Abort()
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		fail(c, http.StatusUnauthorized, "Invalid token claims")
		c.Abort()
		return
	}
	username, _ := claims["sub"].(string)
	admin, _ := claims["admin"].(bool)
	c.Set("username", username)
	c.Set("is_admin", admin)
	c.Next()
}

func (s *Server) adminRequired(c *gin.Context) {
	if !c.GetBool("is_admin") {
		fail(c, http.StatusForbidden, "Admin privileges required")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) handleChat(c *gin.Context) {
	if s.FailChat {
		fail(c, http.StatusInternalServerError, "chat service unavailable")
		return
	}

	var req struct {
		ConversationID *int64 `json:"conversation_id"`
		Message        string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	username := c.GetString("username")
	key := c.GetHeader("X-Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()

	var conv *conversation
	if req.ConversationID != nil {
		conv = s.convs[*req.ConversationID]
		if conv == nil || conv.Owner != username {
			fail(c, http.StatusNotFound, "Conversation not found")
			return
		}
	} else {
		if key != "" {
			if id, seen := s.idempotency[key]; seen {
				conv = s.convs[id]
			}
		}
		if conv == nil {
			conv = &conversation{
				ID:        s.nextConvID,
				Owner:     username,
				CreatedAt: time.Now(),
				Summary:   truncate(req.Message, 60),
			}
			s.nextConvID++
			s.convs[conv.ID] = conv
			s.convOrder = append(s.convOrder, conv.ID)
			if key != "" {
				s.idempotency[key] = conv.ID
			}
		}
	}

	reply := "Understood."
	if s.ReplyFunc != nil {
		reply = s.ReplyFunc(req.Message)
	}
	now := time.Now()
	conv.Messages = append(conv.Messages,
		messageItem{Role: "user", Content: req.Message, CreatedAt: now},
		messageItem{Role: "assistant", Content: reply, CreatedAt: now},
	)

	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "reply": reply})
}

func (s *Server) handleListConversations(c *gin.Context) {
	if s.FailList {
		fail(c, http.StatusInternalServerError, "list service unavailable")
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gin.H, 0)
	// Newest first, like the real service.
	for i := len(s.convOrder) - 1; i >= 0; i-- {
		conv := s.convs[s.convOrder[i]]
		if conv.Owner != username {
			continue
		}
		out = append(out, gin.H{
			"conversation_id": conv.ID,
			"created_at":      conv.CreatedAt,
			"summary":         conv.Summary,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.FailHistory {
		fail(c, http.StatusInternalServerError, "history service unavailable")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid conversation id")
		return
	}
	username := c.GetString("username")

	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.convs[id]
	if conv == nil || conv.Owner != username {
		fail(c, http.StatusNotFound, "Conversation not found")
		return
	}
	msgs := append([]messageItem(nil), conv.Messages...)
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "messages": msgs})
}

func (s *Server) handleIngest(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "url required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.ingested {
		if u == req.URL {
			fail(c, http.StatusBadRequest,
				fmt.Sprintf("Legislation at URL %s has already been ingested.", req.URL))
			return
		}
	}
	s.ingested = append(s.ingested, req.URL)
	c.JSON(http.StatusOK, gin.H{"inserted_chunks": s.InsertedChunks})
}

func (s *Server) handleIngestedURLs(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := append([]string(nil), s.ingested...)
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func truncate(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}
