// Package realtime manages the persistent channel that streams proximity
// snapshots from the server, one channel per role.
//
// The manager establishes and tears down channels and reports what happens to
// them. It never reconnects on its own; the calling layer decides when to try
// again using a Policy.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/tether/config"
	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/internal/telemetry"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/models"
	"github.com/sirupsen/logrus"
)

// TokenSource provides the bearer token presented at handshake.
type TokenSource interface {
	AccessToken() string
}

// Options configures a Manager.
type Options struct {
	// URL is the realtime base URL, e.g. wss://api.example.com.
	URL                  string
	HostConnectTimeout   time.Duration
	MemberConnectTimeout time.Duration
	DataTimeout          time.Duration
	RequestEvent         string
	DataEvent            string
	Dialer               Dialer
	Logger               *logrus.Entry
}

// OptionsFromConfig maps the loaded configuration onto manager options.
func OptionsFromConfig(cfg *config.Config) Options {
	rt := cfg.Realtime
	return Options{
		URL:                  cfg.Server.RealtimeURL,
		HostConnectTimeout:   rt.HostConnectTimeout.Std(),
		MemberConnectTimeout: rt.MemberConnectTimeout.Std(),
		DataTimeout:          rt.DataTimeout.Std(),
		RequestEvent:         rt.RequestEvent,
		DataEvent:            rt.DataEvent,
	}
}

// slot tracks the live handle for one role.
type slot struct {
	// mu serialises connect and teardown for the role.
	mu       sync.Mutex
	handle   *Handle
	attempts int
}

// Manager owns at most one live Handle per role.
type Manager struct {
	opts   Options
	tokens TokenSource
	logger *logrus.Entry

	mu    sync.Mutex
	slots map[models.Role]*slot
}

// NewManager creates a manager that authenticates with tokens.
func NewManager(tokens TokenSource, opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.RequestEvent == "" {
		opts.RequestEvent = "requestData"
	}
	if opts.DataEvent == "" {
		opts.DataEvent = "info"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("realtime")
	}
	return &Manager{
		opts:   opts,
		tokens: tokens,
		logger: logger,
		slots:  make(map[models.Role]*slot),
	}
}

func (m *Manager) slot(role models.Role) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[role]
	if !ok {
		s = &slot{}
		m.slots[role] = s
	}
	return s
}

// ConnectTimeout returns the connect timeout for role.
func (m *Manager) ConnectTimeout(role models.Role) time.Duration {
	if role == models.RoleMember && m.opts.MemberConnectTimeout > 0 {
		return m.opts.MemberConnectTimeout
	}
	if m.opts.HostConnectTimeout > 0 {
		return m.opts.HostConnectTimeout
	}
	return 8 * time.Second
}

// Connect returns a connected handle for role. A connected handle is reused;
// any other previous handle is torn down before a new channel is dialled.
// listeners are attached before the first frame is read.
//
// Without a stored token Connect fails with NOT_AUTHENTICATED and does not
// dial. A dial that outlives the role's connect timeout fails with
// CONNECT_TIMEOUT; other dial errors are CONNECT_FAILED.
func (m *Manager) Connect(ctx context.Context, role models.Role, listeners ...Listener) (*Handle, error) {
	if !role.Valid() {
		return nil, errors.InvalidInput("role", "must be host or member")
	}

	s := m.slot(role)
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.handle; prev != nil {
		if prev.State() == StateConnected {
			for _, l := range listeners {
				prev.Subscribe(l)
			}
			return prev, nil
		}
		if prev.State().Retryable() {
			s.attempts++
		}
		prev.Teardown()
		s.handle = nil
	}

	log := m.logger.WithFields(logrus.Fields{"role": role.String(), "attempt": s.attempts})
	h := newHandle(role, s.attempts, m.opts, log)
	h.onHealthy = func() { m.markHealthy(s, h) }
	s.handle = h
	for _, l := range listeners {
		h.Subscribe(l)
	}

	token := m.tokens.AccessToken()
	if token == "" {
		err := errors.NotAuthenticated("realtime connect")
		h.setState(StateFailed, err)
		telemetry.RealtimeConnects.WithLabelValues(role.String(), "unauthenticated").Inc()
		return nil, err
	}

	h.setState(StateConnecting, nil)
	conn, err := m.dial(ctx, role, token)
	if err != nil {
		h.setState(StateFailed, err)
		telemetry.RealtimeConnects.WithLabelValues(role.String(), string(errors.GetCode(err))).Inc()
		log.WithError(err).Warn("Realtime connect failed")
		return nil, err
	}

	request, _ := json.Marshal(Envelope{Event: m.opts.RequestEvent})
	if err := conn.WriteMessage(request); err != nil {
		_ = conn.Close()
		err = errors.ConnectFailed(role.String(), err)
		h.setState(StateFailed, err)
		telemetry.RealtimeConnects.WithLabelValues(role.String(), string(errors.ErrCodeConnectFailed)).Inc()
		return nil, err
	}

	telemetry.RealtimeConnects.WithLabelValues(role.String(), "success").Inc()
	log.Info("Realtime channel connected")
	h.start(conn)
	return h, nil
}

func (m *Manager) dial(ctx context.Context, role models.Role, token string) (Conn, error) {
	timeout := m.ConnectTimeout(role)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := m.opts.Dialer.Dial(dialCtx, m.endpoint(role, token), header)
	if err == nil {
		return conn, nil
	}
	if ctx.Err() == nil && dialCtx.Err() == context.DeadlineExceeded {
		return nil, errors.ConnectTimeout(role.String(), timeout)
	}
	return nil, errors.ConnectFailed(role.String(), err)
}

// endpoint builds <base>/{role}/location with the token as a query parameter
// for servers that cannot read handshake headers.
func (m *Manager) endpoint(role models.Role, token string) string {
	q := url.Values{}
	q.Set("Authorization", "Bearer "+token)
	return strings.TrimRight(m.opts.URL, "/") + "/" + role.String() + "/location?" + q.Encode()
}

func (m *Manager) markHealthy(s *slot, h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h {
		s.attempts = 0
	}
}

// Handle returns the current handle for role, or nil.
func (m *Manager) Handle(role models.Role) *Handle {
	s := m.slot(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Attempts returns the consecutive abnormal endings for role since the last
// channel that delivered data.
func (m *Manager) Attempts(role models.Role) int {
	s := m.slot(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Disconnect tears down the handle for role, if any, and resets its attempts.
func (m *Manager) Disconnect(role models.Role) {
	s := m.slot(role)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Teardown()
		s.handle = nil
	}
	s.attempts = 0
}

// Close tears down every handle.
func (m *Manager) Close() {
	m.mu.Lock()
	roles := make([]models.Role, 0, len(m.slots))
	for role := range m.slots {
		roles = append(roles, role)
	}
	m.mu.Unlock()

	for _, role := range roles {
		m.Disconnect(role)
	}
}
