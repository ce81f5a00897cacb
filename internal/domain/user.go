package domain

import (
	"strings"
	"time"
)

// Role enumerates the organizational roles supplied by the identity provider.
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleSecurity Role = "SECURITY"
	RoleIT       Role = "IT"
	RoleSupport  Role = "SUPPORT"
	RoleAdmin    Role = "ADMIN"
)

// AllRoles lists every known role in display order.
var AllRoles = []Role{RoleEmployee, RoleManager, RoleSecurity, RoleIT, RoleSupport, RoleAdmin}

// ParseRole normalizes a role name. The second value is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(raw)))
	for _, role := range AllRoles {
		if role == candidate {
			return role, true
		}
	}
	return "", false
}

// User is an account known to the help desk.
type User struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Roles        []Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DisplayName returns the full name, falling back to the email address.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Email
}
