// Package identitytest provides an in-process fake of the identity service
// HTTP surface for tests. Passwords are bcrypt-hashed like a real backend so
// sign-in behaves credibly; tokens are opaque random strings.
package identitytest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ServiceKey is the elevated credential the fake accepts on admin routes.
const ServiceKey = "test-service-key"

// AnonKey is the low-privilege credential.
const AnonKey = "test-anon-key"

// User is one fake identity record.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	Metadata     map[string]any
	CreatedAt    time.Time
	LastSignInAt *time.Time
}

// Server is the fake identity service.
type Server struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*User
	tokens map[string]uuid.UUID
	router chi.Router

	// FailInvite forces POST /invite to answer 500, for exercising the
	// orphan-invitation window.
	FailInvite bool
	// FailPasswordUpdate forces PUT /user to answer 500, for exercising the
	// partial-activation window.
	FailPasswordUpdate bool
}

// NewServer constructs an empty fake.
func NewServer() *Server {
	s := &Server{
		users:  make(map[uuid.UUID]*User),
		tokens: make(map[string]uuid.UUID),
	}
	r := chi.NewRouter()
	r.Get("/auth/v1/user", s.handleGetUser)
	r.Put("/auth/v1/user", s.handleUpdateUser)
	r.Post("/auth/v1/token", s.handleToken)
	r.Post("/auth/v1/logout", s.handleLogout)
	r.Post("/auth/v1/invite", s.requireServiceKey(s.handleInvite))
	r.Get("/auth/v1/admin/users", s.requireServiceKey(s.handleAdminList))
	r.Get("/auth/v1/admin/users/{id}", s.requireServiceKey(s.handleAdminGet))
	r.Post("/auth/v1/admin/users/{id}/logout", s.requireServiceKey(s.handleAdminLogout))
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser seeds a user with a usable password and returns its id.
func (s *Server) AddUser(email, password string, metadata map[string]any) uuid.UUID {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = &User{ID: id, Email: email, PasswordHash: hash, Metadata: metadata, CreatedAt: time.Now()}
	return id
}

// IssueToken mints a live access token for the user.
func (s *Server) IssueToken(userID uuid.UUID) string {
	token := randomToken()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
	return token
}

// TokenAlive reports whether a previously issued token is still valid.
func (s *Server) TokenAlive(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// UserByEmail returns the stored record, or nil.
func (s *Server) UserByEmail(email string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *Server) requireServiceKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) != ServiceKey {
			writeError(w, http.StatusUnauthorized, "service key required")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user := s.userForToken(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeUser(w, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if s.FailPasswordUpdate {
		writeError(w, http.StatusInternalServerError, "password update unavailable")
		return
	}
	user := s.userForToken(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeError(w, http.StatusBadRequest, "password required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.mu.Lock()
	user.PasswordHash = hash
	s.mu.Unlock()
	writeUser(w, user)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		writeError(w, http.StatusBadRequest, "unsupported grant type")
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	user := s.UserByEmail(body.Email)
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(body.Password)) != nil {
		writeError(w, http.StatusBadRequest, "invalid login credentials")
		return
	}
	token := s.IssueToken(user.ID)
	now := time.Now()
	s.mu.Lock()
	user.LastSignInAt = &now
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"expires_in":   3600,
		"user":         userJSON(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	if s.FailInvite {
		writeError(w, http.StatusInternalServerError, "invite unavailable")
		return
	}
	var body struct {
		Email string         `json:"email"`
		Data  map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if existing := s.UserByEmail(body.Email); existing != nil {
		writeUser(w, existing)
		return
	}
	s.mu.Lock()
	id := uuid.New()
	user := &User{ID: id, Email: body.Email, Metadata: body.Data, CreatedAt: time.Now()}
	s.users[id] = user
	s.mu.Unlock()
	writeUser(w, user)
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]map[string]any, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, userJSON(u))
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
}

func (s *Server) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	s.mu.Lock()
	user, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeUser(w, user)
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	s.mu.Lock()
	for token, owner := range s.tokens {
		if owner == id {
			delete(s.tokens, token)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) userForToken(r *http.Request) *User {
	token := bearerToken(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return nil
	}
	return s.users[id]
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

func userJSON(u *User) map[string]any {
	return map[string]any{
		"id":              u.ID.String(),
		"email":           u.Email,
		"user_metadata":   u.Metadata,
		"created_at":      u.CreatedAt,
		"last_sign_in_at": u.LastSignInAt,
	}
}

func writeUser(w http.ResponseWriter, u *User) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(userJSON(u))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}

func randomToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
