// Package session owns the credential lifecycle: login, signup, stored session
// checks, single-flight token refresh and logout.
//
// The Manager is the only writer of the credential store. Other components read
// the current token through AccessToken and learn about logouts by subscribing
// with OnLogout.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/internal/telemetry"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/api"
	"github.com/grovetools/tether/pkg/credstore"
	"github.com/grovetools/tether/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Persisted credential keys. All three are written together.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserType     = "user_type"
)

// DefaultRefreshTimeout bounds one shared refresh round trip.
const DefaultRefreshTimeout = 15 * time.Second

// Role is the kind of device a session belongs to.
type Role = models.Role

// Credentials is the persisted credential set.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Role         Role
}

// AuthResult is the outcome of Login and Signup.
type AuthResult struct {
	Success      bool
	AccessToken  string
	RefreshToken string
	Role         Role
	Message      string
}

// Status is the outcome of CheckStoredSession.
type Status struct {
	Success bool
	Role    Role
}

// RefreshResult is the outcome of Refresh.
type RefreshResult struct {
	Success     bool
	AccessToken string
}

// Manager coordinates credentials for one process.
type Manager struct {
	client         api.Doer
	store          credstore.Store
	logger         *logrus.Entry
	refreshTimeout time.Duration

	refreshGroup singleflight.Group

	mu        sync.Mutex
	listeners map[uint64]func()
	nextID    uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRefreshTimeout bounds the shared refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) { m.refreshTimeout = d }
}

// NewManager creates a session manager that talks to the backend with client
// and persists credentials in store.
func NewManager(client api.Doer, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		client:         client,
		store:          store,
		refreshTimeout: DefaultRefreshTimeout,
		listeners:      make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewLogger("session")
	}
	return m
}

// Login authenticates against /{role}/login. When the server issues an access
// token the full credential set is persisted before Login returns.
func (m *Manager) Login(ctx context.Context, role Role, userID, password string) (*AuthResult, error) {
	if !role.Valid() {
		return nil, errors.InvalidInput("role", "must be host or member")
	}

	var resp models.AuthResponse
	path := "/" + role.String() + "/login"
	if err := api.PostJSON(ctx, m.client, path, models.CredentialsBody(role, userID, password, ""), &resp); err != nil {
		return nil, err
	}

	result := &AuthResult{
		Success:      resp.Succeeded(),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Role:         role,
		Message:      resp.Message,
	}
	if r, err := models.ParseRole(resp.UserType); err == nil {
		result.Role = r
	}

	if resp.AccessToken != "" {
		if err := m.save(Credentials{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			Role:         result.Role,
		}); err != nil {
			return nil, err
		}
		m.logger.WithField("role", result.Role).Info("Logged in")
	}
	return result, nil
}

// Signup registers an account with /{role}/signup. Members must supply the
// identifier of the device they sign up from.
func (m *Manager) Signup(ctx context.Context, role Role, deviceID, userID, password string) (*AuthResult, error) {
	if !role.Valid() {
		return nil, errors.InvalidInput("role", "must be host or member")
	}
	if role == models.RoleMember && deviceID == "" {
		return nil, errors.InvalidInput("deviceId", "required for member signup")
	}

	var resp models.AuthResponse
	path := "/" + role.String() + "/signup"
	if err := api.PostJSON(ctx, m.client, path, models.CredentialsBody(role, userID, password, deviceID), &resp); err != nil {
		return nil, err
	}

	// A 2xx without a success flag is a success.
	return &AuthResult{
		Success: resp.Succeeded() || resp.Success == nil,
		Role:    role,
		Message: resp.Message,
	}, nil
}

// CheckStoredSession reports whether an access token and a recognised role are
// stored. It does not contact the server.
func (m *Manager) CheckStoredSession() Status {
	creds := m.load()
	if creds.AccessToken == "" || !creds.Role.Valid() {
		return Status{}
	}
	return Status{Success: true, Role: creds.Role}
}

// Credentials returns the stored credential set. Missing values are empty.
func (m *Manager) Credentials() Credentials {
	return m.load()
}

// Role returns the stored role, or "" without a session.
func (m *Manager) Role() Role {
	return m.CheckStoredSession().Role
}

// AccessToken returns the stored access token, or "" when absent or unreadable.
func (m *Manager) AccessToken() string {
	token, _ := m.get(KeyAccessToken)
	return token
}

// Refresh exchanges the stored refresh token for a new access token.
//
// Concurrent callers share one round trip and all observe its outcome. The
// shared call is detached from any single caller's context; a caller whose ctx
// ends stops waiting and gets ctx.Err(). Failures return Success=false with a
// NOT_AUTHENTICATED error when nothing is stored and REFRESH_FAILED otherwise.
func (m *Manager) Refresh(ctx context.Context) (RefreshResult, error) {
	ch := m.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(callCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return RefreshResult{}, res.Err
		}
		if res.Shared {
			m.logger.Debug("Joined in-flight token refresh")
		}
		return res.Val.(RefreshResult), nil
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) (RefreshResult, error) {
	creds := m.load()
	if creds.RefreshToken == "" || !creds.Role.Valid() {
		telemetry.RefreshTotal.WithLabelValues("absent").Inc()
		return RefreshResult{}, errors.NotAuthenticated("refresh")
	}

	m.logger.Debug("Refreshing access token")
	var resp models.AuthResponse
	err := api.PostJSON(ctx, m.client, "/auth/refresh", models.RefreshRequest{RefreshToken: creds.RefreshToken}, &resp)
	if err != nil {
		telemetry.RefreshTotal.WithLabelValues("error").Inc()
		m.logger.WithError(err).Warn("Token refresh failed")
		return RefreshResult{}, errors.Wrap(err, errors.ErrCodeRefreshFailed, "token refresh failed")
	}
	if !resp.Succeeded() || resp.AccessToken == "" {
		telemetry.RefreshTotal.WithLabelValues("rejected").Inc()
		msg := resp.Message
		if msg == "" {
			msg = "server did not issue an access token"
		}
		return RefreshResult{}, errors.New(errors.ErrCodeRefreshFailed, "token refresh failed: "+msg)
	}

	next := Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Role:         creds.Role,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = creds.RefreshToken
	}
	if err := m.save(next); err != nil {
		telemetry.RefreshTotal.WithLabelValues("error").Inc()
		return RefreshResult{}, errors.Wrap(err, errors.ErrCodeRefreshFailed, "token refresh failed")
	}

	telemetry.RefreshTotal.WithLabelValues("success").Inc()
	m.logger.Info("Access token refreshed")
	return RefreshResult{Success: true, AccessToken: next.AccessToken}, nil
}

// Logout tells the server (best effort), clears every stored credential and
// then notifies all logout listeners. It does not cancel an in-flight refresh.
func (m *Manager) Logout(ctx context.Context) {
	creds := m.load()
	if creds.Role.Valid() && creds.AccessToken != "" {
		req := &api.Request{
			Method: http.MethodPost,
			Path:   "/" + creds.Role.String() + "/logout",
			Header: http.Header{"Authorization": []string{"Bearer " + creds.AccessToken}},
		}
		if _, err := m.client.Do(ctx, req); err != nil {
			m.logger.WithError(err).Debug("Server logout failed, clearing local session anyway")
		}
	}

	if err := m.store.Delete(KeyAccessToken, KeyRefreshToken, KeyUserType); err != nil {
		m.logger.WithError(err).Warn("Failed to clear stored credentials")
	}
	m.logger.Info("Logged out")

	m.mu.Lock()
	listeners := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// OnLogout registers fn to run after every logout. The returned function
// removes the registration and is safe to call more than once.
func (m *Manager) OnLogout(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) get(key string) (string, bool) {
	v, ok, err := m.store.Get(key)
	if err != nil {
		m.logger.WithError(err).WithField("key", key).Warn("Credential store read failed, treating as absent")
		return "", false
	}
	return v, ok
}

func (m *Manager) load() Credentials {
	access, _ := m.get(KeyAccessToken)
	refresh, _ := m.get(KeyRefreshToken)
	role, _ := m.get(KeyUserType)
	return Credentials{AccessToken: access, RefreshToken: refresh, Role: Role(role)}
}

func (m *Manager) save(c Credentials) error {
	err := m.store.Set(map[string]string{
		KeyAccessToken:  c.AccessToken,
		KeyRefreshToken: c.RefreshToken,
		KeyUserType:     c.Role.String(),
	})
	if err != nil {
		m.logger.WithError(err).Error("Failed to persist credentials")
		return errors.StoreFailed("save credentials", err)
	}
	return nil
}
