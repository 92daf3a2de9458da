package host

import (
	"context"
	"testing"
	"time"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/internal/testserver"
	"github.com/grovetools/tether/pkg/api"
	"github.com/grovetools/tether/pkg/credstore"
	"github.com/grovetools/tether/pkg/gateway"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/grovetools/tether/pkg/session"
	"github.com/grovetools/tether/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = proximity.Thresholds{Safe: 100, Warning: 200, Danger: 300}

func newTestClient(t *testing.T) (*Client, *testserver.Server) {
	t.Helper()
	srv := testserver.New()
	t.Cleanup(srv.Close)

	store := credstore.NewMemoryStore()
	access, refresh := srv.IssueTokens(models.RoleHost)
	require.NoError(t, store.Set(map[string]string{
		session.KeyAccessToken:  access,
		session.KeyRefreshToken: refresh,
		session.KeyUserType:     "host",
	}))

	apiClient := api.NewClient(srv.URL, 5*time.Second, api.WithLogger(testutil.QuietLogger()))
	sessions := session.NewManager(apiClient, store, session.WithLogger(testutil.QuietLogger()))
	gw := gateway.New(apiClient, sessions, testutil.QuietLogger())

	thresholds, err := proximity.NewThresholdStore(defaults)
	require.NoError(t, err)
	return NewClient(gw, thresholds, testutil.QuietLogger()), srv
}

func TestRenameMember(t *testing.T) {
	c, srv := newTestClient(t)

	require.NoError(t, c.RenameMember(context.Background(), " Alice ", "Ally"))
	assert.Equal(t, []models.RenameMemberRequest{{BeforeName: "Alice", AfterName: "Ally"}}, srv.Renames())
}

func TestRenameMemberInvalid(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
	}{
		{"empty before", "", "Bob"},
		{"empty after", "Bob", "  "},
		{"unchanged", "Bob", "Bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(t)
			err := c.RenameMember(context.Background(), tt.before, tt.after)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
			assert.Empty(t, srv.Renames())
		})
	}
}

func TestUpdateThresholds(t *testing.T) {
	c, srv := newTestClient(t)
	next := proximity.Thresholds{Safe: 50, Warning: 150, Danger: 1200}

	require.NoError(t, c.UpdateThresholds(context.Background(), next))
	assert.Equal(t, next, c.Thresholds())

	sent, ok := srv.Thresholds()
	require.True(t, ok)
	assert.Equal(t, models.ThresholdsRequest{Safe: 50, Warning: 150, Danger: 1200}, sent)
}

func TestUpdateThresholdsRejectedLocally(t *testing.T) {
	tests := []struct {
		name string
		in   proximity.Thresholds
		code errors.ErrorCode
	}{
		{"out of order", proximity.Thresholds{Safe: 200, Warning: 100, Danger: 300}, errors.ErrCodeThresholdOutOfOrder},
		{"danger below warning", proximity.Thresholds{Safe: 100, Warning: 300, Danger: 200}, errors.ErrCodeThresholdOutOfOrder},
		{"negative", proximity.Thresholds{Safe: -1, Warning: 100, Danger: 200}, errors.ErrCodeThresholdOutOfRange},
		{"above max", proximity.Thresholds{Safe: 100, Warning: 200, Danger: 2001}, errors.ErrCodeThresholdOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(t)
			err := c.UpdateThresholds(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Equal(t, defaults, c.Thresholds(), "active thresholds unchanged")
			_, sent := srv.Thresholds()
			assert.False(t, sent, "invalid thresholds never reach the server")
		})
	}
}

type failingPoster struct{ err error }

func (p failingPoster) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return p.err
}

func TestUpdateThresholdsServerFailureKeepsActive(t *testing.T) {
	store, err := proximity.NewThresholdStore(defaults)
	require.NoError(t, err)
	c := NewClient(failingPoster{err: errors.FromStatus("POST", "/host/distance", 500, "")}, store, testutil.QuietLogger())

	err = c.UpdateThresholds(context.Background(), proximity.Thresholds{Safe: 10, Warning: 20, Danger: 30})
	assert.Equal(t, errors.ErrCodeServerError, errors.GetCode(err))
	assert.Equal(t, defaults, c.Thresholds())
}
