// Package gateway sends authenticated API requests. It attaches the current
// access token and recovers from an expired token with one refresh and one
// retry.
package gateway

import (
	"context"
	"sync"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/api"
	"github.com/grovetools/tether/pkg/session"
	"github.com/sirupsen/logrus"
)

// Sessions is the part of the session manager the gateway depends on.
type Sessions interface {
	AccessToken() string
	Refresh(ctx context.Context) (session.RefreshResult, error)
	Logout(ctx context.Context)
}

// Gateway wraps an api.Doer with token handling. It satisfies api.Doer itself.
type Gateway struct {
	next     api.Doer
	sessions Sessions
	logger   *logrus.Entry

	// loggedOut is the access token whose failed refresh last ended the session.
	mu        sync.Mutex
	loggedOut string
}

// New creates a gateway that sends through next and takes tokens from sessions.
// A nil logger falls back to the "gateway" component logger.
func New(next api.Doer, sessions Sessions, logger *logrus.Entry) *Gateway {
	if logger == nil {
		logger = logging.NewLogger("gateway")
	}
	return &Gateway{next: next, sessions: sessions, logger: logger}
}

// attempt carries per-call retry state alongside the request.
type attempt struct {
	retried bool
	token   string
}

// Do sends req with the stored bearer token. A 401 on the first attempt
// triggers a shared refresh and exactly one resend; if the refresh fails the
// session is logged out and the original 401 is returned. The caller's request
// is never modified.
func (g *Gateway) Do(ctx context.Context, req *api.Request) (*api.Response, error) {
	return g.do(ctx, req, attempt{token: g.sessions.AccessToken()})
}

func (g *Gateway) do(ctx context.Context, req *api.Request, at attempt) (*api.Response, error) {
	resp, err := g.next.Do(ctx, authorize(req, at.token))
	if err == nil || !errors.Is(err, errors.ErrCodeUnauthorized) || at.retried {
		return resp, err
	}

	log := g.logger.WithField("op", req.Op())

	// Another caller may have refreshed while this request was in flight.
	if current := g.sessions.AccessToken(); current != "" && current != at.token {
		log.Debug("Token changed during request, retrying with current token")
		return g.do(ctx, req, attempt{retried: true, token: current})
	}

	log.Debug("Request unauthorized, refreshing token")
	res, refreshErr := g.sessions.Refresh(ctx)
	if refreshErr != nil || !res.Success || res.AccessToken == "" {
		if ctx.Err() != nil {
			return nil, err
		}
		g.logoutOnce(ctx, log.WithError(refreshErr), at.token)
		return nil, err
	}

	return g.do(ctx, req, attempt{retried: true, token: res.AccessToken})
}

// logoutOnce ends the session for a failed refresh of token. Callers that
// shared the same failed refresh log out only once.
func (g *Gateway) logoutOnce(ctx context.Context, log *logrus.Entry, token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if token != "" && token == g.loggedOut {
		return
	}
	log.Warn("Token refresh failed, logging out")
	g.sessions.Logout(context.WithoutCancel(ctx))
	g.loggedOut = token
}

// PostJSON sends body to path and decodes the response into out.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return api.PostJSON(ctx, g, path, body, out)
}

func authorize(req *api.Request, token string) *api.Request {
	out := req.Clone()
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

var (
	_ api.Doer = (*Gateway)(nil)
	_ Sessions = (*session.Manager)(nil)
)
