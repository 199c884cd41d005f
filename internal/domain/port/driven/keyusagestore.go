package driven

import (
	"context"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
)

// KeyUsageStore defines the driven port for durable per-key quota tracking.
// Writes are synchronously visible to the next read. The store does not
// retry: a write failure is surfaced to the caller, never swallowed.
type KeyUsageStore interface {
	// Get retrieves the usage record for the given key index.
	// Returns (nil, nil) when no record exists for that index.
	Get(ctx context.Context, index int) (*model.KeyUsage, error)

	// Upsert stores or replaces the usage record, keyed by its index.
	Upsert(ctx context.Context, usage model.KeyUsage) error

	// ListAll returns all usage records ordered by key index.
	ListAll(ctx context.Context) ([]model.KeyUsage, error)
}
