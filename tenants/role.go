package tenants

import "strings"

// Role is the role a user acts as within an establishment.
type Role string

const (
	RoleStudent    Role = "student"
	RoleParent     Role = "parent"
	RoleTeacher    Role = "teacher"
	RoleAdminStaff Role = "admin_staff"
)

var allowedRoles = []Role{RoleStudent, RoleParent, RoleTeacher, RoleAdminStaff}

// AllowedRoles returns the enumerated role set.
func AllowedRoles() []Role {
	roles := make([]Role, len(allowedRoles))
	copy(roles, allowedRoles)
	return roles
}

// Valid reports whether r belongs to the allowed role set.
func (r Role) Valid() bool {
	for _, allowed := range allowedRoles {
		if r == allowed {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole trims s and returns it as a Role when it is in the allowed set.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(s))
	return r, r.Valid()
}

// FirstRole parses a role header that may carry a comma-separated list.
// Only the first entry is honored.
func FirstRole(header string) (Role, bool) {
	first, _, _ := strings.Cut(header, ",")
	return ParseRole(first)
}
