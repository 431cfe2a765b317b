package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/carbide-fleet/carbide/pkg/persistence/memstore"
)

func TestTryAcquireSucceedsThenConflictsForAnotherOwner(t *testing.T) {
	store := memstore.New()
	a := New(store, "owner-a")
	b := New(store, "owner-b")
	ctx := context.Background()

	_, ok, err := a.TryAcquire(ctx, "endpoint:10.0.0.10", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected owner-a to acquire a free lease, got ok=%v err=%v", ok, err)
	}

	_, ok, err = b.TryAcquire(ctx, "endpoint:10.0.0.10", time.Minute)
	if err != nil {
		t.Fatalf("a conflicting acquire must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("owner-b must not acquire a lease still held by owner-a")
	}
}

func TestReleaseFreesLeaseForAnotherOwner(t *testing.T) {
	store := memstore.New()
	a := New(store, "owner-a")
	b := New(store, "owner-b")
	ctx := context.Background()

	if _, ok, _ := a.TryAcquire(ctx, "endpoint:10.0.0.11", time.Minute); !ok {
		t.Fatalf("expected owner-a to acquire the lease")
	}
	if err := a.Release(ctx, "endpoint:10.0.0.11"); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if _, ok, err := b.TryAcquire(ctx, "endpoint:10.0.0.11", time.Minute); err != nil || !ok {
		t.Fatalf("expected owner-b to acquire the lease after release, ok=%v err=%v", ok, err)
	}
}

func TestWithLeaseReleasesAfterFn(t *testing.T) {
	store := memstore.New()
	a := New(store, "owner-a")
	b := New(store, "owner-b")
	ctx := context.Background()

	ran, err := a.WithLease(ctx, "firmware-upgrade:10.0.0.12", time.Minute, func(ctx context.Context) error {
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected WithLease to run fn, ran=%v err=%v", ran, err)
	}

	if _, ok, err := b.TryAcquire(ctx, "firmware-upgrade:10.0.0.12", time.Minute); err != nil || !ok {
		t.Fatalf("expected the lease to be released after WithLease returns, ok=%v err=%v", ok, err)
	}
}

func TestEndpointAndFirmwareUpgradeLeaseNamesAreDistinct(t *testing.T) {
	ip := "10.0.0.13"
	if EndpointLeaseName(ip) == FirmwareUpgradeLeaseName(ip) {
		t.Fatalf("exploration and firmware-upgrade leases for the same IP must not collide")
	}
}
