package proximity

import (
	"testing"

	"github.com/grovetools/tether/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHostPayload(t *testing.T) {
	payload := []byte(`{
		"host": {"lat": 37.5665, "lon": 126.978},
		"distanceInfo": {"safe": 100, "warning": 200, "danger": 300},
		"members": [
			{"memberName": "kid", "lat": 37.57, "lon": 126.98, "distance": 150},
			{"memberName": "teen", "lat": 37.6, "lon": 127.0, "distance": 10, "danger": 3},
			{"lat": 1, "lon": 2, "distance": "250"},
			42
		]
	}`)

	snap := Decode(models.RoleHost, payload, Thresholds{})
	assert.Equal(t, models.RoleHost, snap.Role)
	assert.Equal(t, Position{Lat: 37.5665, Lon: 126.978}, snap.Host)
	assert.Equal(t, defaultThresholds, snap.Thresholds)
	assert.True(t, snap.Reported)
	require.Len(t, snap.Members, 3)

	assert.Equal(t, "kid", snap.Members[0].Name)
	assert.Equal(t, TierWarning, snap.Members[0].Tier, "derived from distance")

	assert.Equal(t, TierDeparted, snap.Members[1].Tier, "server level wins over distance")

	assert.Equal(t, UnknownName, snap.Members[2].Name)
	assert.Equal(t, 250.0, snap.Members[2].Distance, "numeric strings are accepted")
	assert.Equal(t, TierDanger, snap.Members[2].Tier)

	assert.Equal(t, TierDeparted, snap.MaxTier())
}

func TestDecodeMemberPayload(t *testing.T) {
	payload := []byte(`{"danger": 2, "distance": 260.5, "distanceInfo": {"safe": 100, "warning": 200, "danger": 300},
		"host": {"lat": 1.5, "lon": 2.5}, "member": {"lat": 3.5, "lon": 4.5}}`)

	snap := Decode(models.RoleMember, payload, Thresholds{})
	self, ok := snap.Self()
	require.True(t, ok)
	assert.Equal(t, TierDanger, self.Tier)
	assert.Equal(t, 260.5, self.Distance)
	assert.Equal(t, Position{Lat: 3.5, Lon: 4.5}, self.Position)
	assert.Equal(t, Position{Lat: 1.5, Lon: 2.5}, snap.Host)
}

func TestDecodeMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		role    models.Role
		payload string
	}{
		{"empty object host", models.RoleHost, `{}`},
		{"empty object member", models.RoleMember, `{}`},
		{"not json", models.RoleMember, `<<garbage>>`},
		{"array", models.RoleHost, `[1,2,3]`},
		{"wrong types", models.RoleMember, `{"host": "nowhere", "distance": "far", "member": [1]}`},
		{"null", models.RoleMember, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snap Snapshot
			require.NotPanics(t, func() { snap = Decode(tt.role, []byte(tt.payload), Thresholds{}) })

			assert.Equal(t, Position{}, snap.Host)
			assert.Equal(t, DefaultThresholds, snap.Thresholds)
			assert.False(t, snap.Reported)
			for _, m := range snap.Members {
				assert.Equal(t, Position{}, m.Position)
				assert.Zero(t, m.Distance)
				assert.Equal(t, TierSafe, m.Tier)
			}
		})
	}
}

func TestDecodeClampsServerLevel(t *testing.T) {
	snap := Decode(models.RoleMember, []byte(`{"danger": 9}`), Thresholds{})
	self, _ := snap.Self()
	assert.Equal(t, TierDeparted, self.Tier)

	snap = Decode(models.RoleMember, []byte(`{"danger": -4}`), Thresholds{})
	self, _ = snap.Self()
	assert.Equal(t, TierSafe, self.Tier)
}

func TestDecodeThresholdFallback(t *testing.T) {
	custom := Thresholds{Safe: 10, Warning: 20, Danger: 30}

	tests := []struct {
		name     string
		payload  string
		fallback Thresholds
		want     Thresholds
		reported bool
		tier     Tier
	}{
		{"missing uses fallback", `{"distance": 25}`, custom, custom, false, TierDanger},
		{"missing without fallback", `{"distance": 25}`, Thresholds{}, DefaultThresholds, false, TierSafe},
		{"out of order uses fallback", `{"distance": 25, "distanceInfo": {"safe": 300, "warning": 200, "danger": 100}}`,
			custom, custom, false, TierDanger},
		{"partial uses fallback", `{"distance": 25, "distanceInfo": {"safe": 100}}`, custom, custom, false, TierDanger},
		{"valid payload wins", `{"distance": 25, "distanceInfo": {"safe": 100, "warning": 200, "danger": 300}}`,
			custom, defaultThresholds, true, TierSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Decode(models.RoleMember, []byte(tt.payload), tt.fallback)
			assert.Equal(t, tt.want, snap.Thresholds)
			assert.Equal(t, tt.reported, snap.Reported)
			self, ok := snap.Self()
			require.True(t, ok)
			assert.Equal(t, tt.tier, self.Tier)
		})
	}
}
