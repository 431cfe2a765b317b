// Package coordination implements named work-lease coordination over
// persistence.Store, generalized from the teacher's
// internal/coordination/host_claim_coordinator.go atomic-claim-with-retry
// idiom (deterministic candidate ordering, bounded retries with backoff,
// "someone else won, move on" semantics) into the design's "at most one
// writer per named resource" work-lock contract (§5 "Work locks"): per-IP
// exploration leases, and per-endpoint firmware-upgrade leases that must not
// overlap across reconciliation iterations.
package coordination

import (
	"context"
	"time"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/persistence"
)

// LeaseCoordinator acquires and releases named leases against a
// persistence.Store, retrying acquisition with backoff when another owner
// currently holds an unexpired lease.
type LeaseCoordinator struct {
	store         persistence.Store
	owner         string
	maxRetries    int
	backoffFactor time.Duration
}

// New builds a LeaseCoordinator bound to store, identifying itself as owner
// (typically a process instance ID or hostname) on every acquired lease.
func New(store persistence.Store, owner string) *LeaseCoordinator {
	return &LeaseCoordinator{
		store:         store,
		owner:         owner,
		maxRetries:    5,
		backoffFactor: 100 * time.Millisecond,
	}
}

// TryAcquire makes a single, non-blocking attempt to acquire name. A lease
// held by another live owner returns (false, nil) rather than an error, so
// callers can treat it as "skip this iteration" without special-casing an
// error type.
func (c *LeaseCoordinator) TryAcquire(ctx context.Context, name string, ttl time.Duration) (persistence.Lease, bool, error) {
	lease, err := c.store.AcquireLease(ctx, name, c.owner, ttl)
	if err == nil {
		return lease, true, nil
	}
	if e, ok := carbideerr.As(err); ok && e.Kind == carbideerr.KindFailedPrecondition {
		return persistence.Lease{}, false, nil
	}
	return persistence.Lease{}, false, err
}

// AcquireWithRetry retries TryAcquire with linear backoff, giving up after
// maxRetries attempts and returning (lease, false, nil) — mirroring
// attemptAtomicClaim's "conflicts aren't errors, just keep trying" pattern.
func (c *LeaseCoordinator) AcquireWithRetry(ctx context.Context, name string, ttl time.Duration) (persistence.Lease, bool, error) {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return persistence.Lease{}, false, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoffFactor):
			}
		}
		lease, ok, err := c.TryAcquire(ctx, name, ttl)
		if err != nil {
			return persistence.Lease{}, false, err
		}
		if ok {
			return lease, true, nil
		}
	}
	return persistence.Lease{}, false, nil
}

// Renew extends an already-held lease.
func (c *LeaseCoordinator) Renew(ctx context.Context, name string, ttl time.Duration) error {
	return c.store.RenewLease(ctx, name, c.owner, ttl)
}

// Release gives up a held lease. Releasing a lease this owner doesn't hold
// is a no-op from the caller's perspective when the lease is already gone.
func (c *LeaseCoordinator) Release(ctx context.Context, name string) error {
	return c.store.ReleaseLease(ctx, name, c.owner)
}

// WithLease acquires name, runs fn, and releases the lease afterward
// regardless of fn's outcome. Used to bracket a single reconciliation
// iteration's exclusive work against one endpoint or firmware upgrade.
func (c *LeaseCoordinator) WithLease(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	_, ok, err := c.TryAcquire(ctx, name, ttl)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		_ = c.Release(ctx, name)
	}()
	return true, fn(ctx)
}

// EndpointLeaseName builds the canonical lease name for one BMC endpoint's
// exploration/preingestion work, keyed by IP as the design specifies
// ("each endpoint holds its own lease (IP-keyed) for the duration of its
// exploration").
func EndpointLeaseName(ip string) string {
	return "endpoint:" + ip
}

// FirmwareUpgradeLeaseName builds the lease name for an in-flight firmware
// upgrade against one endpoint, distinct from the plain exploration lease so
// a long-running upgrade doesn't block ordinary re-exploration of the same
// IP from observing progress.
func FirmwareUpgradeLeaseName(ip string) string {
	return "firmware-upgrade:" + ip
}
