package auth

import (
	"slices"
	"strings"
	"time"
)

// Role is one of the closed set of account roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAuditor    Role = "auditor"
	RoleSupervisor Role = "supervisor"
	RoleViewer     Role = "viewer"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleAuditor, RoleSupervisor, RoleViewer}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, slices.Contains(Roles, r)
}

// User is the credential record owned by the user store.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Team         string    `json:"team,omitempty"`
	Zones        []string  `json:"zones"`
	Active       bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sanitized returns a copy safe to hand to callers outside the auth
// boundary: the password hash is cleared and slices are not shared.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	if u.Zones == nil {
		u.Zones = []string{}
	} else {
		u.Zones = slices.Clone(u.Zones)
	}
	return u
}

// Identity is the authenticated principal attached to a request. It is built
// from the live user record, not from token claims.
type Identity struct {
	ID       int64
	Username string
	Role     Role
	Team     string
}

// IdentityOf builds the request identity for u.
func IdentityOf(u User) Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role, Team: u.Team}
}

// HasRole reports whether the identity's role is one of roles.
func (i Identity) HasRole(roles ...Role) bool {
	return slices.Contains(roles, i.Role)
}
