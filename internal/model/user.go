package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a closed authorization role enum. Unknown role strings are
// rejected at the boundary, never stored.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleAssistant  Role = "assistant"
	RoleStudent    Role = "student"
	RoleGuest      Role = "guest"
)

// rolePriority orders roles from most to least privileged. Higher wins.
var rolePriority = map[Role]int{
	RoleSuperAdmin: 6,
	RoleAdmin:      5,
	RoleInstructor: 4,
	RoleAssistant:  3,
	RoleStudent:    2,
	RoleGuest:      1,
}

// ValidRole reports whether r is a member of the closed role set.
func ValidRole(r Role) bool {
	_, ok := rolePriority[r]
	return ok
}

// PrimaryRole returns the most privileged role in the set, or RoleGuest for
// an empty set.
func PrimaryRole(roles []Role) Role {
	primary := RoleGuest
	best := 0
	for _, r := range roles {
		if p := rolePriority[r]; p > best {
			best = p
			primary = r
		}
	}
	return primary
}

// HasRole reports whether the set contains the given role.
func HasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// User is an authenticated identity.
type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	PasswordHash     string    `json:"-"`
	Roles            []Role    `json:"roles"`
	TwoFactorSecret  string    `json:"-"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// LoginRequest carries the credential pair.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChangeRolesRequest replaces a user's role set.
type ChangeRolesRequest struct {
	Roles []Role `json:"roles" binding:"required,min=1"`
}
