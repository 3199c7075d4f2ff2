package tenants

import "time"

// ActiveContext is the establishment and role the user currently acts within.
// Either field may be empty when nothing has been selected or confirmed yet.
type ActiveContext struct {
	EstablishmentID string    `json:"establishment_id,omitempty"`
	Role            Role      `json:"role,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at,omitempty"` // Last mutation time
}

// IsZero reports whether no context is held.
func (c ActiveContext) IsZero() bool {
	return c.EstablishmentID == "" && c.Role == "" && c.ConfirmedAt.IsZero()
}
