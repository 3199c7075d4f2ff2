package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/stretchr/testify/require"
)

func findBinding(t *testing.T, bindings []config.ServiceBinding, name string) config.ServiceBinding {
	t.Helper()
	for _, b := range bindings {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("binding %q not found", name)
	return config.ServiceBinding{}
}

func TestLoadBindings_Defaults(t *testing.T) {
	bindings, err := config.LoadBindings("")
	require.NoError(t, err)
	require.Len(t, bindings, 7)

	identity := findBinding(t, bindings, "identity")
	require.Equal(t, "X-Etab-Select", identity.Headers.EstablishmentSelect)
	require.Equal(t, "X-Role-Select", identity.Headers.RoleSelect)
	require.Equal(t, "X-Etab", identity.Headers.EstablishmentConfirm)
	require.Equal(t, "X-Roles", identity.Headers.RoleConfirm)

	student := findBinding(t, bindings, "student")
	require.Equal(t, "X-Etab", student.Headers.EstablishmentSelect)
	require.Equal(t, "X-Roles", student.Headers.RoleSelect)
	require.Equal(t, "https://api.uat1-engy-partners.com/student/", student.BaseURL)
}

func TestLoadBindings_EnvOverride(t *testing.T) {
	t.Setenv("EDC_MESSAGE_BASE_URL", "http://localhost:9000/message/")

	bindings, err := config.LoadBindings("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000/message/", findBinding(t, bindings, "message").BaseURL)
}

func TestParseBindings(t *testing.T) {
	t.Run("inline headers override profile", func(t *testing.T) {
		raw := []byte(`
header_profiles:
  legacy:
    establishment_select: X-Etab
services:
  audit:
    base_url: http://audit.local/
    header_profile: legacy
    default_establishment_id: etab-0
    headers:
      establishment_select: X-Audit-Etab
      role_select: ""
      establishment_confirm: X-Audit-Etab
      role_confirm: X-Audit-Role
`)
		bindings, err := config.ParseBindings(raw)
		require.NoError(t, err)
		require.Len(t, bindings, 1)
		require.Equal(t, "X-Audit-Etab", bindings[0].Headers.EstablishmentSelect)
		require.Empty(t, bindings[0].Headers.RoleSelect)
		require.Equal(t, "etab-0", bindings[0].DefaultEstablishmentID)
	})

	t.Run("unknown profile", func(t *testing.T) {
		raw := []byte(`
services:
  audit:
    base_url: http://audit.local/
    header_profile: nope
`)
		_, err := config.ParseBindings(raw)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown header profile")
	})

	t.Run("missing base url", func(t *testing.T) {
		raw := []byte(`
services:
  audit:
    headers:
      establishment_select: X-Etab
`)
		_, err := config.ParseBindings(raw)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no base_url")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := config.ParseBindings([]byte("services: ["))
		require.Error(t, err)
	})
}

func TestLoadBindings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  classe:
    base_url: http://classe.local/
    headers:
      establishment_select: X-Etab
      role_select: X-Roles
      establishment_confirm: X-Etab
      role_confirm: X-Roles
`), 0o600))

	bindings, err := config.LoadBindings(path)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	require.Equal(t, "classe", bindings[0].Name)

	_, err = config.LoadBindings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, "ws", c.GetRealtimePath())
	require.Equal(t, 5, c.GetMaxReconnectAttempts())
	require.Equal(t, "message", c.GetRealtimeService())
	require.Equal(t, "edc.", c.GetKeyPrefix())

	t.Setenv("SESSION_MIN_TOKEN_VALIDITY", "45")
	require.Equal(t, "45s", c.GetMinTokenValidity().String())

	t.Setenv("SESSION_MIN_TOKEN_VALIDITY", "2m")
	require.Equal(t, "2m0s", c.GetMinTokenValidity().String())
}
