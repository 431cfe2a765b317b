// Package memstore is an in-process implementation of persistence.Store,
// used by unit and integration-style tests and by small standalone
// deployments that don't need pgstore's durability.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/persistence"
)

// Store is a mutex-guarded, map-backed persistence.Store.
type Store struct {
	mu sync.Mutex

	machines map[ids.MachineId]model.Machine
	health   map[ids.MachineId][]model.HealthReport
	desires  map[ids.MachineId]model.InstanceDesire

	explorationReports map[string]model.EndpointExplorationReport
	exploredHosts      map[string]model.ExploredManagedHost

	profiles  map[ids.ProfileId]model.MeasurementSystemProfile
	bundles   map[ids.BundleId]model.MeasurementBundle
	reports   map[ids.ReportId]model.MeasurementReport
	journal   []model.MeasurementJournal
	approvals map[ids.ApprovalId]model.MeasurementApproval

	leases map[string]persistence.Lease
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		machines:           make(map[ids.MachineId]model.Machine),
		health:             make(map[ids.MachineId][]model.HealthReport),
		desires:            make(map[ids.MachineId]model.InstanceDesire),
		explorationReports: make(map[string]model.EndpointExplorationReport),
		exploredHosts:      make(map[string]model.ExploredManagedHost),
		profiles:           make(map[ids.ProfileId]model.MeasurementSystemProfile),
		bundles:            make(map[ids.BundleId]model.MeasurementBundle),
		reports:            make(map[ids.ReportId]model.MeasurementReport),
		approvals:          make(map[ids.ApprovalId]model.MeasurementApproval),
		leases:             make(map[string]persistence.Lease),
	}
}

var _ persistence.Store = (*Store)(nil)

func (s *Store) GetMachine(_ context.Context, id ids.MachineId) (model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return model.Machine{}, carbideerr.NotFound("GetMachine", "Machine", id.String())
	}
	return m, nil
}

func (s *Store) ListMachines(_ context.Context, filter persistence.MachineFilter) ([]model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Machine
	for _, m := range s.machines {
		if m.Type == model.MachineTypeDpu && !filter.IncludeDpus {
			continue
		}
		if m.Type == model.MachineTypePredictedHost && !filter.IncludePredictedHost {
			continue
		}
		if filter.OnlyMaintenance && !m.Maintenance.On {
			continue
		}
		if filter.OnlyQuarantine && !m.Quarantine.Quarantined {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, m.Type) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func containsType(types []model.MachineType, t model.MachineType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func (s *Store) ListDpusForHost(_ context.Context, hostID ids.MachineId) ([]model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Machine
	for _, m := range s.machines {
		if m.Type == model.MachineTypeDpu && m.AssociatedHostMachineID != nil && *m.AssociatedHostMachineID == hostID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) CreateMachine(_ context.Context, m model.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.machines[m.ID]; exists {
		return carbideerr.AlreadyExists("CreateMachine", "Machine", m.ID.String())
	}
	m.StateVersion = 1
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.machines[m.ID] = m
	return nil
}

func (s *Store) UpdateMachine(_ context.Context, m model.Machine, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.machines[m.ID]
	if !ok {
		return carbideerr.NotFound("UpdateMachine", "Machine", m.ID.String())
	}
	if existing.StateVersion != expectedVersion {
		return carbideerr.ConcurrentModification("UpdateMachine", "Machine", m.ID.String(), expectedVersion)
	}
	m.StateVersion = expectedVersion + 1
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now()
	s.machines[m.ID] = m
	return nil
}

func (s *Store) DeleteMachine(_ context.Context, id ids.MachineId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.machines[id]; !ok {
		return carbideerr.NotFound("DeleteMachine", "Machine", id.String())
	}
	delete(s.machines, id)
	return nil
}

func (s *Store) PutHealthReport(_ context.Context, r model.HealthReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reports := s.health[r.MachineID]
	for i, existing := range reports {
		if existing.Source == r.Source {
			reports[i] = r
			s.health[r.MachineID] = reports
			return nil
		}
	}
	s.health[r.MachineID] = append(reports, r)
	return nil
}

func (s *Store) ListHealthReports(_ context.Context, machineID ids.MachineId) ([]model.HealthReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.HealthReport(nil), s.health[machineID]...), nil
}

func (s *Store) GetInstanceDesire(_ context.Context, machineID ids.MachineId) (*model.InstanceDesire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.desires[machineID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) PutInstanceDesire(_ context.Context, d model.InstanceDesire) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desires[d.TargetMachineID] = d
	return nil
}

func (s *Store) GetExplorationReport(_ context.Context, ip string) (model.EndpointExplorationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.explorationReports[ip]
	if !ok {
		return model.EndpointExplorationReport{}, carbideerr.NotFound("GetExplorationReport", "EndpointExplorationReport", ip)
	}
	return r, nil
}

func (s *Store) PutExplorationReport(_ context.Context, r model.EndpointExplorationReport, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ip := r.IP.String()
	existing, ok := s.explorationReports[ip]
	if ok && existing.ReportVersion != expectedVersion {
		return carbideerr.ConcurrentModification("PutExplorationReport", "EndpointExplorationReport", ip, expectedVersion)
	}
	r.ReportVersion = expectedVersion + 1
	r.UpdatedAt = time.Now()
	s.explorationReports[ip] = r
	return nil
}

func (s *Store) ListExplorationReports(_ context.Context) ([]model.EndpointExplorationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EndpointExplorationReport, 0, len(s.explorationReports))
	for _, r := range s.explorationReports {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) PutExploredManagedHost(_ context.Context, h model.ExploredManagedHost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exploredHosts[h.HostBmcIP.String()] = h
	return nil
}

func (s *Store) ListExploredManagedHosts(_ context.Context) ([]model.ExploredManagedHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ExploredManagedHost, 0, len(s.exploredHosts))
	for _, h := range s.exploredHosts {
		out = append(out, h)
	}
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, id ids.ProfileId) (model.MeasurementSystemProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.MeasurementSystemProfile{}, carbideerr.NotFound("GetProfile", "MeasurementSystemProfile", id.String())
	}
	return p, nil
}

func (s *Store) FindProfileByAttributes(_ context.Context, attrs []model.ProfileAttribute) (*model.MeasurementSystemProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if attributesEqual(p.Attributes, attrs) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func attributesEqual(a, b []model.ProfileAttribute) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]string, len(a))
	for _, attr := range a {
		am[attr.Key] = attr.Value
	}
	for _, attr := range b {
		if v, ok := am[attr.Key]; !ok || v != attr.Value {
			return false
		}
	}
	return true
}

func (s *Store) CreateProfile(_ context.Context, p model.MeasurementSystemProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.ID]; exists {
		return carbideerr.AlreadyExists("CreateProfile", "MeasurementSystemProfile", p.ID.String())
	}
	p.Version = 1
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, p model.MeasurementSystemProfile, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.profiles[p.ID]
	if !ok {
		return carbideerr.NotFound("UpdateProfile", "MeasurementSystemProfile", p.ID.String())
	}
	if existing.Version != expectedVersion {
		return carbideerr.ConcurrentModification("UpdateProfile", "MeasurementSystemProfile", p.ID.String(), expectedVersion)
	}
	p.Version = expectedVersion + 1
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) ListProfiles(_ context.Context) ([]model.MeasurementSystemProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MeasurementSystemProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetBundle(_ context.Context, id ids.BundleId) (model.MeasurementBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[id]
	if !ok {
		return model.MeasurementBundle{}, carbideerr.NotFound("GetBundle", "MeasurementBundle", id.String())
	}
	return b, nil
}

func (s *Store) CreateBundle(_ context.Context, b model.MeasurementBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bundles[b.ID]; exists {
		return carbideerr.AlreadyExists("CreateBundle", "MeasurementBundle", b.ID.String())
	}
	b.Version = 1
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bundles[b.ID] = b
	return nil
}

func (s *Store) UpdateBundle(_ context.Context, b model.MeasurementBundle, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.bundles[b.ID]
	if !ok {
		return carbideerr.NotFound("UpdateBundle", "MeasurementBundle", b.ID.String())
	}
	if existing.Version != expectedVersion {
		return carbideerr.ConcurrentModification("UpdateBundle", "MeasurementBundle", b.ID.String(), expectedVersion)
	}
	if existing.State == model.BundleStateRevoked {
		return carbideerr.FailedPrecondition("UpdateBundle", "bundle is Revoked; no further state changes are permitted")
	}
	b.Version = expectedVersion + 1
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now()
	s.bundles[b.ID] = b
	return nil
}

func (s *Store) ListBundlesForProfile(_ context.Context, profileID ids.ProfileId) ([]model.MeasurementBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeasurementBundle
	for _, b := range s.bundles {
		if b.ProfileID == profileID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) DeleteBundle(_ context.Context, id ids.BundleId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.journal {
		if j.MatchedBundle != nil && *j.MatchedBundle == id {
			return carbideerr.FailedPrecondition("DeleteBundle", "bundle is referenced by a journal row")
		}
	}
	if _, ok := s.bundles[id]; !ok {
		return carbideerr.NotFound("DeleteBundle", "MeasurementBundle", id.String())
	}
	delete(s.bundles, id)
	return nil
}

func (s *Store) CreateReport(_ context.Context, r model.MeasurementReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[r.ID]; exists {
		return carbideerr.AlreadyExists("CreateReport", "MeasurementReport", r.ID.String())
	}
	s.reports[r.ID] = r
	return nil
}

func (s *Store) GetReport(_ context.Context, id ids.ReportId) (model.MeasurementReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return model.MeasurementReport{}, carbideerr.NotFound("GetReport", "MeasurementReport", id.String())
	}
	return r, nil
}

func (s *Store) ListReportsForMachine(_ context.Context, machineID ids.MachineId) ([]model.MeasurementReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeasurementReport
	for _, r := range s.reports {
		if r.MachineID == machineID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) AppendJournal(_ context.Context, j model.MeasurementJournal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, j)
	return nil
}

func (s *Store) ListJournalForMachine(_ context.Context, machineID ids.MachineId) ([]model.MeasurementJournal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeasurementJournal
	for _, j := range s.journal {
		if j.MachineID == machineID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) CreateApproval(_ context.Context, a model.MeasurementApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = a
	return nil
}

func (s *Store) ConsumeApproval(_ context.Context, id ids.ApprovalId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	if !ok {
		return carbideerr.NotFound("ConsumeApproval", "MeasurementApproval", id.String())
	}
	a.Consumed = true
	s.approvals[id] = a
	return nil
}

func (s *Store) ListApprovalsForMachine(_ context.Context, machineID ids.MachineId) ([]model.MeasurementApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeasurementApproval
	for _, a := range s.approvals {
		if a.Consumed {
			continue
		}
		if a.Target.Kind == model.ApprovalTargetSpecificMachine && a.Target.MachineID == machineID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListApprovalsForProfile(_ context.Context, profileID ids.ProfileId) ([]model.MeasurementApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeasurementApproval
	for _, a := range s.approvals {
		if a.Consumed {
			continue
		}
		if a.Target.Kind == model.ApprovalTargetProfile && a.Target.ProfileID == profileID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListApprovalsWildcard(_ context.Context) ([]model.MeasurementApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MeasurementApproval
	for _, a := range s.approvals {
		if a.Consumed {
			continue
		}
		if a.Target.Kind == model.ApprovalTargetAnyMachine {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) AcquireLease(_ context.Context, name, owner string, ttl time.Duration) (persistence.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.leases[name]; ok && existing.Owner != owner && !existing.Expired(now) {
		return persistence.Lease{}, carbideerr.FailedPrecondition("AcquireLease", "lease "+name+" held by another owner")
	}
	lease := persistence.Lease{Name: name, Owner: owner, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	s.leases[name] = lease
	return lease, nil
}

func (s *Store) RenewLease(_ context.Context, name, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leases[name]
	if !ok || existing.Owner != owner {
		return carbideerr.FailedPrecondition("RenewLease", "lease "+name+" not held by this owner")
	}
	existing.ExpiresAt = time.Now().Add(ttl)
	s.leases[name] = existing
	return nil
}

func (s *Store) ReleaseLease(_ context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leases[name]
	if !ok {
		return nil
	}
	if existing.Owner != owner {
		return carbideerr.FailedPrecondition("ReleaseLease", "lease "+name+" not held by this owner")
	}
	delete(s.leases, name)
	return nil
}
