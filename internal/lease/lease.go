// Package lease implements the single-leader distributed lease that
// guards the wake-up scheduler. The lease is held entirely in the
// externally owned store via the acquire_scheduler_lock and
// release_scheduler_lock RPCs; the scheduler_lock row itself is the only
// durable state the wake-up path needs.
package lease

import "context"

// Store is the subset of the Store Gateway the Lease needs.
type Store interface {
	AcquireSchedulerLock(ctx context.Context, workerID string, ttlSeconds int) (bool, error)
	ReleaseSchedulerLock(ctx context.Context, workerID string) (bool, error)
}

// Lease is a single named, TTL-bound, store-backed distributed lock. The
// store enforces expiry, so a crashed holder blocks other workers for at
// most the TTL.
type Lease struct {
	store      Store
	workerID   string
	ttlSeconds int
}

// New constructs a Lease. workerID identifies the holder for ownership
// checks on release; ttlSeconds is the lock's TTL.
func New(store Store, workerID string, ttlSeconds int) *Lease {
	return &Lease{store: store, workerID: workerID, ttlSeconds: ttlSeconds}
}

// Acquire tries to acquire the lease. Returns true if this worker now
// holds it.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	return l.store.AcquireSchedulerLock(ctx, l.workerID, l.ttlSeconds)
}

// Release releases the lease if this worker still owns it. Returns false,
// without error, if another worker already holds it or it already expired.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	return l.store.ReleaseSchedulerLock(ctx, l.workerID)
}
