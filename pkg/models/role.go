package models

import "fmt"

// Role is the kind of device a session belongs to.
type Role string

const (
	RoleHost   Role = "host"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleMember
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts user or storage input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (expected host or member)", s)
	}
	return r, nil
}

// IDField returns the JSON field name that carries the user identifier for r.
func (r Role) IDField() string {
	if r == RoleMember {
		return "memberId"
	}
	return "hostId"
}
