package domain

import "strings"

// Role is the administrative level carried by a verified token.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole normalizes the textual role found in token claims. Unknown values
// are returned as-is so they are visible in logs, but they rank below RoleUser.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "staff", "employee":
		return RoleUser
	case "admin", "manager":
		return RoleAdmin
	case "super_admin", "superadmin", "super-admin", "owner":
		return RoleSuperAdmin
	default:
		return Role(strings.ToLower(strings.TrimSpace(raw)))
	}
}

func (r Role) rank() int {
	switch r {
	case RoleSuperAdmin:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// Known reports whether the role is one of the three recognized levels.
func (r Role) Known() bool {
	return r.rank() > 0
}

// AtLeast reports whether r ranks equal to or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Known() && r.rank() >= min.rank()
}

// Identity is derived once from a verified credential and never changes for
// the lifetime of a connection.
type Identity struct {
	UserID  string `json:"userId"`
	Role    Role   `json:"role"`
	StoreID int64  `json:"storeId"`
}
