// Package persistence defines the Store contract: the durable collaborator
// the design treats as external (entity CRUD, optimistic concurrency via a
// per-row version, filtered queries, and a named work-lease table). Two
// implementations live alongside it: memstore (in-process, for tests and
// small deployments) and pgstore (jackc/pgx/v5-backed, for production).
package persistence

import (
	"context"
	"time"

	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
)

// MachineFilter narrows a Machine listing query. Zero-value fields are
// unconstrained.
type MachineFilter struct {
	IncludeDpus           bool
	OnlyMaintenance       bool
	OnlyQuarantine        bool
	IncludePredictedHost  bool
	InstanceTypeID        string
	Types                 []model.MachineType
}

// Store is the persistence contract every component in Carbide depends on.
// All writes that mutate an existing row take the caller's believed prior
// version and fail with a carbideerr ConcurrentModification on mismatch.
type Store interface {
	// Machines

	GetMachine(ctx context.Context, id ids.MachineId) (model.Machine, error)
	ListMachines(ctx context.Context, filter MachineFilter) ([]model.Machine, error)
	ListDpusForHost(ctx context.Context, hostID ids.MachineId) ([]model.Machine, error)
	CreateMachine(ctx context.Context, m model.Machine) error
	// UpdateMachine persists m, requiring expectedVersion to equal the
	// currently stored version; on success the stored version is
	// incremented and UpdatedAt refreshed.
	UpdateMachine(ctx context.Context, m model.Machine, expectedVersion int64) error
	DeleteMachine(ctx context.Context, id ids.MachineId) error

	// Health

	PutHealthReport(ctx context.Context, r model.HealthReport) error
	ListHealthReports(ctx context.Context, machineID ids.MachineId) ([]model.HealthReport, error)

	// Instance desires

	GetInstanceDesire(ctx context.Context, machineID ids.MachineId) (*model.InstanceDesire, error)
	PutInstanceDesire(ctx context.Context, d model.InstanceDesire) error

	// Exploration

	GetExplorationReport(ctx context.Context, ip string) (model.EndpointExplorationReport, error)
	PutExplorationReport(ctx context.Context, r model.EndpointExplorationReport, expectedVersion int64) error
	ListExplorationReports(ctx context.Context) ([]model.EndpointExplorationReport, error)
	PutExploredManagedHost(ctx context.Context, h model.ExploredManagedHost) error
	ListExploredManagedHosts(ctx context.Context) ([]model.ExploredManagedHost, error)

	// Attestation

	GetProfile(ctx context.Context, id ids.ProfileId) (model.MeasurementSystemProfile, error)
	FindProfileByAttributes(ctx context.Context, attrs []model.ProfileAttribute) (*model.MeasurementSystemProfile, error)
	CreateProfile(ctx context.Context, p model.MeasurementSystemProfile) error
	UpdateProfile(ctx context.Context, p model.MeasurementSystemProfile, expectedVersion int64) error
	ListProfiles(ctx context.Context) ([]model.MeasurementSystemProfile, error)

	GetBundle(ctx context.Context, id ids.BundleId) (model.MeasurementBundle, error)
	CreateBundle(ctx context.Context, b model.MeasurementBundle) error
	UpdateBundle(ctx context.Context, b model.MeasurementBundle, expectedVersion int64) error
	ListBundlesForProfile(ctx context.Context, profileID ids.ProfileId) ([]model.MeasurementBundle, error)
	DeleteBundle(ctx context.Context, id ids.BundleId) error

	CreateReport(ctx context.Context, r model.MeasurementReport) error
	GetReport(ctx context.Context, id ids.ReportId) (model.MeasurementReport, error)
	ListReportsForMachine(ctx context.Context, machineID ids.MachineId) ([]model.MeasurementReport, error)

	AppendJournal(ctx context.Context, j model.MeasurementJournal) error
	ListJournalForMachine(ctx context.Context, machineID ids.MachineId) ([]model.MeasurementJournal, error)

	CreateApproval(ctx context.Context, a model.MeasurementApproval) error
	ConsumeApproval(ctx context.Context, id ids.ApprovalId) error
	ListApprovalsForMachine(ctx context.Context, machineID ids.MachineId) ([]model.MeasurementApproval, error)
	ListApprovalsForProfile(ctx context.Context, profileID ids.ProfileId) ([]model.MeasurementApproval, error)
	ListApprovalsWildcard(ctx context.Context) ([]model.MeasurementApproval, error)

	// Work leases (see Lease)

	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (Lease, error)
	RenewLease(ctx context.Context, name, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, name, owner string) error
}

// Lease is one named work lock: "at most one writer per named resource",
// used for operations spanning multiple entities and iterations (e.g. a
// firmware upgrade in flight against one endpoint).
type Lease struct {
	Name       string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease is past its expiry as of now, and so
// eligible to be stolen by a new owner.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
