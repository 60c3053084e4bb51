package state

import "context"

// Store is the durable document store for build records. Only one pipeline
// writes at a time; updates are applied as atomic partial patches per call.
type Store interface {
	// Create inserts a new record for the given config with status=started
	// and progress=0 and returns it with a generated id.
	Create(ctx context.Context, cfg BuildConfig) (*BuildRecord, error)

	// Update applies a partial patch to the record and bumps updated_at.
	Update(ctx context.Context, id string, patch Patch) error

	// AppendLog appends one line to the record's ordered log.
	AppendLog(ctx context.Context, id, line string) error

	// Get returns the full record including logs, or a not-found error.
	Get(ctx context.Context, id string) (*BuildRecord, error)

	// List returns up to limit records ordered by start time descending.
	List(ctx context.Context, limit int) ([]BuildRecord, error)

	// Close releases store resources.
	Close() error
}
