package clients

import "github.com/jrsteele09/go-tenant-session/internal/config"

// HeaderNames is a service's header table. Select headers carry the client's
// intent on requests, Confirm headers carry the server's authoritative choice
// on responses. An empty name disables that header.
type HeaderNames struct {
	EstablishmentSelect  string
	RoleSelect           string
	EstablishmentConfirm string
	RoleConfirm          string
}

// Binding names a backend service and how to talk to it.
type Binding struct {
	Name                   string
	BaseURL                string
	Headers                HeaderNames
	DefaultEstablishmentID string // Sent when no establishment is selected
}

// BindingFromConfig converts a resolved config binding. defaultEstablishmentID
// fills in when the binding has none of its own.
func BindingFromConfig(sb config.ServiceBinding, defaultEstablishmentID string) Binding {
	b := Binding{
		Name:    sb.Name,
		BaseURL: sb.BaseURL,
		Headers: HeaderNames{
			EstablishmentSelect:  sb.Headers.EstablishmentSelect,
			RoleSelect:           sb.Headers.RoleSelect,
			EstablishmentConfirm: sb.Headers.EstablishmentConfirm,
			RoleConfirm:          sb.Headers.RoleConfirm,
		},
		DefaultEstablishmentID: sb.DefaultEstablishmentID,
	}
	if b.DefaultEstablishmentID == "" {
		b.DefaultEstablishmentID = defaultEstablishmentID
	}
	return b
}
