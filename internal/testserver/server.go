// Package testserver is an in-process fake of the tether backend used by tests.
// It speaks the same HTTP and realtime protocol as the real server and counts
// the calls that tests make assertions about.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/grovetools/tether/pkg/models"
)

type account struct {
	password string
	deviceID string
}

// Server is a fake backend on an httptest server.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]account
	accessTokens  map[string]models.Role
	refreshTokens map[string]models.Role
	renames       []models.RenameMemberRequest
	thresholds    *models.ThresholdsRequest
	sockets       []*Socket
	seq           int

	// RefreshCalls counts POST /auth/refresh requests.
	RefreshCalls atomic.Int32
	// LogoutCalls counts POST /{role}/logout requests.
	LogoutCalls atomic.Int32
	// RefreshDelay holds each refresh response, widening the window for
	// concurrent callers.
	RefreshDelay time.Duration
	// FailRefresh makes refresh answer 401.
	FailRefresh atomic.Bool
	// OmitRefreshToken makes refresh answer with an access token only.
	OmitRefreshToken atomic.Bool

	upgrader websocket.Upgrader
	accepted chan *Socket
}

// New starts a fake backend. Close it with Close.
func New() *Server {
	s := &Server{
		accounts:      make(map[string]account),
		accessTokens:  make(map[string]models.Role),
		refreshTokens: make(map[string]models.Role),
		accepted:      make(chan *Socket, 16),
	}

	r := mux.NewRouter()
	r.HandleFunc("/{role:host|member}/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/{role:host|member}/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/{role:host|member}/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.Handle("/host/name", s.requireAuth(http.HandlerFunc(s.handleRename))).Methods(http.MethodPost)
	r.Handle("/host/distance", s.requireAuth(http.HandlerFunc(s.handleDistance))).Methods(http.MethodPost)
	r.Handle("/status/{code:[0-9]+}", s.requireAuth(http.HandlerFunc(s.handleStatus)))
	r.HandleFunc("/{role:host|member}/location", s.handleLocation).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// Close closes open realtime sockets and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	sockets := s.sockets
	s.sockets = nil
	s.mu.Unlock()
	for _, sock := range sockets {
		sock.Close()
	}
	s.Server.Close()
}

// RealtimeURL returns the ws:// base URL of the server.
func (s *Server) RealtimeURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// AddAccount registers a user that can log in.
func (s *Server) AddAccount(role models.Role, id, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[string(role)+":"+id] = account{password: password}
}

// IssueTokens creates a valid token pair for role without a login round trip.
func (s *Server) IssueTokens(role models.Role) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(role)
}

func (s *Server) issueLocked(role models.Role) (string, string) {
	s.seq++
	access := fmt.Sprintf("access-%s-%d", role, s.seq)
	refresh := fmt.Sprintf("refresh-%s-%d", role, s.seq)
	s.accessTokens[access] = role
	s.refreshTokens[refresh] = role
	return access, refresh
}

// Expire revokes an access token so the next request using it gets 401.
func (s *Server) Expire(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accessTokens, access)
}

// Renames returns the rename requests received so far.
func (s *Server) Renames() []models.RenameMemberRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RenameMemberRequest(nil), s.renames...)
}

// Thresholds returns the last thresholds received, if any.
func (s *Server) Thresholds() (models.ThresholdsRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thresholds == nil {
		return models.ThresholdsRequest{}, false
	}
	return *s.thresholds, true
}

// DeviceID returns the device registered for a signed up account.
func (s *Server) DeviceID(role models.Role, id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[string(role)+":"+id].deviceID
}

// NextSocket waits for the next accepted realtime connection.
func (s *Server) NextSocket(timeout time.Duration) (*Socket, error) {
	select {
	case sock := <-s.accepted:
		return sock, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no realtime connection within %s", timeout)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		h = r.URL.Query().Get("Authorization")
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func (s *Server) roleFor(token string) (models.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.accessTokens[token]
	return role, ok
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.roleFor(bearer(r)); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "token expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	role := models.Role(mux.Vars(r)["role"])
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "malformed body"})
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[string(role)+":"+body[role.IDField()]]
	if !ok || acct.password != body["password"] {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "invalid credentials"})
		return
	}
	access, refresh := s.issueLocked(role)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"accessToken":  access,
		"refreshToken": refresh,
		"userType":     string(role),
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	role := models.Role(mux.Vars(r)["role"])
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "malformed body"})
		return
	}
	id := body[role.IDField()]
	if id == "" || body["password"] == "" || (role == models.RoleMember && body["deviceId"] == "") {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "missing fields"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(role) + ":" + id
	if _, exists := s.accounts[key]; exists {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"success": false, "message": "already registered"})
		return
	}
	s.accounts[key] = account{password: body["password"], deviceID: body["deviceId"]}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "registered"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.LogoutCalls.Add(1)
	s.Expire(bearer(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)
	if s.RefreshDelay > 0 {
		time.Sleep(s.RefreshDelay)
	}

	var body models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "malformed body"})
		return
	}

	s.mu.Lock()
	role, ok := s.refreshTokens[body.RefreshToken]
	if !ok || s.FailRefresh.Load() {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "refresh token rejected"})
		return
	}
	access, refresh := s.issueLocked(role)
	s.mu.Unlock()

	resp := map[string]interface{}{"success": true, "accessToken": access}
	if !s.OmitRefreshToken.Load() {
		resp["refreshToken"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var body models.RenameMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BeforeName == "" || body.AfterName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "names required"})
		return
	}
	s.mu.Lock()
	s.renames = append(s.renames, body)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	var body models.ThresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "malformed body"})
		return
	}
	s.mu.Lock()
	s.thresholds = &body
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleStatus answers with the status code in the path, for error mapping tests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var code int
	fmt.Sscanf(mux.Vars(r)["code"], "%d", &code)
	writeJSON(w, code, map[string]interface{}{"message": http.StatusText(code)})
}
