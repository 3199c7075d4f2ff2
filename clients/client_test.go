package clients_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-session/clients"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

func TestClientURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"https://api.example.org/student/", "/items", "https://api.example.org/student/items"},
		{"https://api.example.org/student", "items", "https://api.example.org/student/items"},
		{"https://api.example.org/student/", "//items?page=2", "https://api.example.org/student/items?page=2"},
		{"https://api.example.org/", "/student/items", "https://api.example.org/student/items"},
	}
	for _, tt := range tests {
		t.Run(tt.base+" "+tt.path, func(t *testing.T) {
			c, err := clients.NewClient(clients.Binding{Name: "student", BaseURL: tt.base}, http.DefaultTransport, time.Second)
			require.NoError(t, err)
			got, err := c.URL(tt.path)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "api.example.org/student", "ftp://api.example.org/", "https://"} {
		t.Run(base, func(t *testing.T) {
			_, err := clients.NewClient(clients.Binding{Name: "student", BaseURL: base}, http.DefaultTransport, time.Second)
			require.ErrorIs(t, err, errors.ErrInvalidBaseURL)
		})
	}
}

func TestRegistry(t *testing.T) {
	registry := clients.NewRegistry()
	for _, name := range []string{"student", "identity"} {
		c, err := clients.NewClient(clients.Binding{Name: name, BaseURL: "https://api.example.org/" + name + "/"}, http.DefaultTransport, time.Second)
		require.NoError(t, err)
		registry.Register(c)
	}

	require.Equal(t, []string{"identity", "student"}, registry.Names())

	c, err := registry.Get("student")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.org/student/", c.BaseURL())

	_, err = registry.Get("billing")
	require.ErrorIs(t, err, errors.ErrUnknownService)
}

func TestBindingFromConfig(t *testing.T) {
	bindings, err := config.LoadBindings("")
	require.NoError(t, err)

	byName := map[string]clients.Binding{}
	for _, sb := range bindings {
		b := clients.BindingFromConfig(sb, "E0")
		byName[b.Name] = b
	}

	require.Equal(t, "X-Etab-Select", byName["identity"].Headers.EstablishmentSelect)
	require.Equal(t, "X-Etab", byName["student"].Headers.EstablishmentSelect)
	require.Equal(t, "X-Roles", byName["student"].Headers.RoleConfirm)
	require.Equal(t, "E0", byName["timetable"].DefaultEstablishmentID)
}

func TestStatusError(t *testing.T) {
	err := &clients.StatusError{Service: "student", Method: http.MethodGet, URL: "https://x/items", StatusCode: http.StatusUnauthorized}
	require.ErrorIs(t, err, errors.ErrAuthExpired)
	require.Contains(t, err.Error(), "401 Unauthorized")

	other := &clients.StatusError{StatusCode: http.StatusNotFound, Code: "not_found"}
	require.NotErrorIs(t, other, errors.ErrAuthExpired)
	require.True(t, clients.IsStatus(other, http.StatusNotFound))
}
