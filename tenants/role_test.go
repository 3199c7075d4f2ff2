package tenants_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-session/tenants"
)

func TestFirstRole(t *testing.T) {
	tests := []struct {
		header string
		want   tenants.Role
		ok     bool
	}{
		{"teacher", tenants.RoleTeacher, true},
		{"teacher,admin_staff", tenants.RoleTeacher, true},
		{" admin_staff , teacher", tenants.RoleAdminStaff, true},
		{"superuser,teacher", "superuser", false},
		{"", "", false},
		{"Teacher", "Teacher", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := tenants.FirstRole(tt.header)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestAllowedRoles(t *testing.T) {
	roles := tenants.AllowedRoles()
	require.ElementsMatch(t, []tenants.Role{tenants.RoleStudent, tenants.RoleParent, tenants.RoleTeacher, tenants.RoleAdminStaff}, roles)

	roles[0] = "mutated"
	require.True(t, tenants.RoleStudent.Valid())
	require.NotContains(t, tenants.AllowedRoles(), tenants.Role("mutated"))
}
