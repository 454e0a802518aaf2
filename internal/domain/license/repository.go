package license

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("license not found")

// Store is the persistence boundary of the license engine. Implementations give
// no isolation across calls; BindIfAbsent and RecordUse are the only operations
// that must be atomic with respect to a single key.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Patch(ctx context.Context, key string, p Patch) error
	List(ctx context.Context) ([]*Record, error)

	// BindIfAbsent binds machineID when the record has no machine yet. It returns
	// the record as stored after the call and whether this call performed the bind.
	BindIfAbsent(ctx context.Context, key, machineID string, at time.Time) (*Record, bool, error)
	// RecordUse increments uses and sets last_seen in one step.
	RecordUse(ctx context.Context, key string, at time.Time) (*Record, error)
}
