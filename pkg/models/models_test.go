package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole("member")
	require.NoError(t, err)
	assert.Equal(t, RoleMember, r)
	assert.Equal(t, "memberId", r.IDField())
	assert.Equal(t, "hostId", RoleHost.IDField())

	_, err = ParseRole("admin")
	assert.Error(t, err)
	assert.False(t, Role("").Valid())
}

func TestAuthResponseSucceeded(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"explicit true", `{"success": true, "accessToken": "a"}`, true},
		{"explicit false with token", `{"success": false, "accessToken": "a"}`, false},
		{"missing flag with token", `{"accessToken": "a"}`, true},
		{"missing flag without token", `{"message": "nope"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp AuthResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.Equal(t, tt.want, resp.Succeeded())
		})
	}
}

func TestCredentialsBody(t *testing.T) {
	body := CredentialsBody(RoleMember, "kid", "pw", "dev-1")
	assert.Equal(t, map[string]string{"memberId": "kid", "password": "pw", "deviceId": "dev-1"}, body)

	body = CredentialsBody(RoleHost, "parent", "pw", "")
	assert.Equal(t, map[string]string{"hostId": "parent", "password": "pw"}, body)
}
