package auth

import "strings"

// Role is the account role tag chosen at signup. It carries no permissions.
type Role string

const (
	// RoleStartup is a founder account
	RoleStartup Role = "startup"
	// RoleInvestor is an investor account
	RoleInvestor Role = "investor"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStartup, RoleInvestor:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// Label is the display text used by the signup role selector
func (r Role) Label() string {
	switch r {
	case RoleStartup:
		return "Startup"
	case RoleInvestor:
		return "Investor"
	default:
		return ""
	}
}

// GetAllRoles returns every selectable role in display order
func GetAllRoles() []Role {
	return []Role{
		RoleStartup,
		RoleInvestor,
	}
}

// RoleValues returns the roles as plain values, handy for validation.In
func RoleValues() []any {
	roles := GetAllRoles()
	out := make([]any, len(roles))
	for i, r := range roles {
		out[i] = r
	}
	return out
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}
