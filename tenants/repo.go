package tenants

import "context"

// Repo persists the active context triple. Implementations must write and
// clear all three fields in a single operation.
type Repo interface {
	Load(ctx context.Context) (ActiveContext, error)
	Save(ctx context.Context, activeContext ActiveContext) error
	Clear(ctx context.Context) error
}
