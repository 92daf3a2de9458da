package notify

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/grovetools/tether/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepartureText(t *testing.T) {
	tr := proximity.Transition{Identity: "Alice", From: proximity.TierDanger, To: proximity.TierDeparted}

	host := Departure(models.RoleHost, tr, "Alice")
	assert.Equal(t, DepartureTitle, host.Title)
	assert.Equal(t, "Alice has left the safe zone", host.Message)
	assert.Equal(t, 2, host.FromTier)
	assert.Equal(t, 3, host.ToTier)

	unnamed := Departure(models.RoleHost, tr, "")
	assert.Equal(t, "Unknown has left the safe zone", unnamed.Message)

	member := Departure(models.RoleMember, proximity.Transition{Identity: proximity.SelfKey, To: proximity.TierDeparted}, "ignored")
	assert.Equal(t, "You have left the safe zone", member.Message)
	assert.Equal(t, proximity.SelfKey, member.Identity)
}

func TestJournalRecordAndList(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "alerts", "alerts.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		alert := models.Alert{
			Role:      models.RoleHost,
			Identity:  name,
			Title:     DepartureTitle,
			Message:   name + " has left the safe zone",
			FromTier:  2,
			ToTier:    3,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, j.Notify(ctx, alert))
	}

	all, err := j.List(ctx, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Identity, "newest first")
	assert.Equal(t, models.RoleHost, all[0].Role)
	assert.True(t, all[0].Timestamp.Equal(base.Add(2*time.Minute)))
	assert.NotZero(t, all[0].ID)

	limited, err := j.List(ctx, 1, time.Time{})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	recent, err := j.List(ctx, 10, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	n, err := j.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	empty, err := j.List(ctx, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJournalPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Record(context.Background(), models.Alert{Role: models.RoleMember, Identity: "self", Title: "t", Message: "m", ToTier: 3})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()
	alerts, err := j.List(context.Background(), 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Timestamp.IsZero(), "missing timestamps are filled in")
}

func TestMultiDeliversToAll(t *testing.T) {
	var got []string
	ok := NotifierFunc(func(ctx context.Context, a models.Alert) error {
		got = append(got, a.Identity)
		return nil
	})
	failing := NotifierFunc(func(ctx context.Context, a models.Alert) error {
		return fmt.Errorf("push gateway down")
	})

	err := Multi{failing, nil, ok, LogNotifier{Logger: testutil.QuietLogger()}}.Notify(context.Background(), models.Alert{Identity: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push gateway down")
	assert.Equal(t, []string{"x"}, got, "later notifiers still run")
}

func TestTerminalNotifier(t *testing.T) {
	logging.ConfigureColor(true)
	var buf bytes.Buffer
	n := NewTerminalNotifier(&buf, true)

	require.NoError(t, n.Notify(context.Background(), models.Alert{Title: DepartureTitle, Message: "Bob has left the safe zone", ToTier: 3}))
	out := buf.String()
	assert.True(t, len(out) > 0 && out[0] == '\a', "bell is rung first")
	assert.Contains(t, out, "Departure detected")
	assert.Contains(t, out, "Bob has left the safe zone")
}
