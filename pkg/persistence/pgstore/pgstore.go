// Package pgstore is a PostgreSQL-backed implementation of persistence.Store
// using jackc/pgx/v5. Structured, variable-shaped fields (ManagedHostState,
// FirmwareInventory, DiscoveryInfo, and the rest) are stored as JSONB
// columns rather than normalized across dozens of tables, the same
// trade-off the pack's datastorage service makes for its own
// variable-shaped detection payloads. Per-row `version` columns implement
// optimistic concurrency; a named `work_leases` table implements §5's work
// locks.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/persistence"
)

// Store is a pgxpool-backed persistence.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ persistence.Store = (*Store)(nil)

// NewPgxConnConfig builds a pool config pinned to QueryExecModeDescribeExec.
// The cache-statement default (QueryExecModeCacheStatement) keeps prepared
// plans around across a schema migration performed by a rolling deploy,
// which then fail with a stale-plan error; DescribeExec re-describes every
// query and still gets parameter OIDs right for the JSONB columns below.
func NewPgxConnConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec
	return cfg, nil
}

// Open connects a new Store to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := NewPgxConnConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() { s.pool.Close() }

// Schema is the DDL pgstore expects to exist; callers run it via their own
// migration tool (schema migration itself is an explicit non-goal here).
const Schema = `
CREATE TABLE IF NOT EXISTS machines (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL,
	doc             JSONB NOT NULL,
	state_version   BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS health_reports (
	machine_id TEXT NOT NULL,
	source     TEXT NOT NULL,
	doc        JSONB NOT NULL,
	PRIMARY KEY (machine_id, source)
);

CREATE TABLE IF NOT EXISTS instance_desires (
	machine_id TEXT PRIMARY KEY,
	doc        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS exploration_reports (
	ip             TEXT PRIMARY KEY,
	doc            JSONB NOT NULL,
	report_version BIGINT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS explored_managed_hosts (
	host_bmc_ip TEXT PRIMARY KEY,
	doc         JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bundles (
	id         TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL REFERENCES profiles(id),
	doc        JSONB NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	machine_id TEXT NOT NULL,
	doc        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS journal (
	id         TEXT PRIMARY KEY,
	machine_id TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	id         TEXT PRIMARY KEY,
	target_kind TEXT NOT NULL,
	machine_id  TEXT,
	profile_id  TEXT,
	doc         JSONB NOT NULL,
	consumed    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS work_leases (
	name       TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
`

func (s *Store) GetMachine(ctx context.Context, id ids.MachineId) (model.Machine, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM machines WHERE id = $1`, id.String()).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Machine{}, carbideerr.NotFound("GetMachine", "Machine", id.String())
	}
	if err != nil {
		return model.Machine{}, carbideerr.Internal("GetMachine", err)
	}
	var m model.Machine
	if err := json.Unmarshal(doc, &m); err != nil {
		return model.Machine{}, carbideerr.Internal("GetMachine", err)
	}
	return m, nil
}

func (s *Store) ListMachines(ctx context.Context, filter persistence.MachineFilter) ([]model.Machine, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM machines`)
	if err != nil {
		return nil, carbideerr.Internal("ListMachines", err)
	}
	defer rows.Close()

	var out []model.Machine
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListMachines", err)
		}
		var m model.Machine
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, carbideerr.Internal("ListMachines", err)
		}
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
		if len(filter.Types) > 0 {
			wanted := false
			for _, t := range filter.Types {
				if t == m.Type {
					wanted = true
				}
			}
			if !wanted {
				continue
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListDpusForHost(ctx context.Context, hostID ids.MachineId) ([]model.Machine, error) {
	all, err := s.ListMachines(ctx, persistence.MachineFilter{IncludeDpus: true})
	if err != nil {
		return nil, err
	}
	var out []model.Machine
	for _, m := range all {
		if m.Type == model.MachineTypeDpu && m.AssociatedHostMachineID != nil && *m.AssociatedHostMachineID == hostID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) CreateMachine(ctx context.Context, m model.Machine) error {
	m.StateVersion = 1
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	doc, err := json.Marshal(m)
	if err != nil {
		return carbideerr.Internal("CreateMachine", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO machines (id, type, doc, state_version, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID.String(), string(m.Type), doc, m.StateVersion, now, now)
	if isUniqueViolation(err) {
		return carbideerr.AlreadyExists("CreateMachine", "Machine", m.ID.String())
	}
	if err != nil {
		return carbideerr.Internal("CreateMachine", err)
	}
	return nil
}

func (s *Store) UpdateMachine(ctx context.Context, m model.Machine, expectedVersion int64) error {
	m.StateVersion = expectedVersion + 1
	m.UpdatedAt = time.Now()
	doc, err := json.Marshal(m)
	if err != nil {
		return carbideerr.Internal("UpdateMachine", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE machines SET doc = $1, state_version = $2, updated_at = $3 WHERE id = $4 AND state_version = $5`,
		doc, m.StateVersion, m.UpdatedAt, m.ID.String(), expectedVersion)
	if err != nil {
		return carbideerr.Internal("UpdateMachine", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.ConcurrentModification("UpdateMachine", "Machine", m.ID.String(), expectedVersion)
	}
	return nil
}

func (s *Store) DeleteMachine(ctx context.Context, id ids.MachineId) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM machines WHERE id = $1`, id.String())
	if err != nil {
		return carbideerr.Internal("DeleteMachine", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.NotFound("DeleteMachine", "Machine", id.String())
	}
	return nil
}

func (s *Store) PutHealthReport(ctx context.Context, r model.HealthReport) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return carbideerr.Internal("PutHealthReport", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO health_reports (machine_id, source, doc) VALUES ($1,$2,$3)
		 ON CONFLICT (machine_id, source) DO UPDATE SET doc = EXCLUDED.doc`,
		r.MachineID.String(), r.Source, doc)
	if err != nil {
		return carbideerr.Internal("PutHealthReport", err)
	}
	return nil
}

func (s *Store) ListHealthReports(ctx context.Context, machineID ids.MachineId) ([]model.HealthReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM health_reports WHERE machine_id = $1`, machineID.String())
	if err != nil {
		return nil, carbideerr.Internal("ListHealthReports", err)
	}
	defer rows.Close()
	var out []model.HealthReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListHealthReports", err)
		}
		var r model.HealthReport
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, carbideerr.Internal("ListHealthReports", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetInstanceDesire(ctx context.Context, machineID ids.MachineId) (*model.InstanceDesire, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM instance_desires WHERE machine_id = $1`, machineID.String()).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, carbideerr.Internal("GetInstanceDesire", err)
	}
	var d model.InstanceDesire
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, carbideerr.Internal("GetInstanceDesire", err)
	}
	return &d, nil
}

func (s *Store) PutInstanceDesire(ctx context.Context, d model.InstanceDesire) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return carbideerr.Internal("PutInstanceDesire", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO instance_desires (machine_id, doc) VALUES ($1,$2)
		 ON CONFLICT (machine_id) DO UPDATE SET doc = EXCLUDED.doc`,
		d.TargetMachineID.String(), doc)
	if err != nil {
		return carbideerr.Internal("PutInstanceDesire", err)
	}
	return nil
}

func (s *Store) GetExplorationReport(ctx context.Context, ip string) (model.EndpointExplorationReport, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM exploration_reports WHERE ip = $1`, ip).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EndpointExplorationReport{}, carbideerr.NotFound("GetExplorationReport", "EndpointExplorationReport", ip)
	}
	if err != nil {
		return model.EndpointExplorationReport{}, carbideerr.Internal("GetExplorationReport", err)
	}
	var r model.EndpointExplorationReport
	if err := json.Unmarshal(doc, &r); err != nil {
		return model.EndpointExplorationReport{}, carbideerr.Internal("GetExplorationReport", err)
	}
	return r, nil
}

func (s *Store) PutExplorationReport(ctx context.Context, r model.EndpointExplorationReport, expectedVersion int64) error {
	r.ReportVersion = expectedVersion + 1
	r.UpdatedAt = time.Now()
	doc, err := json.Marshal(r)
	if err != nil {
		return carbideerr.Internal("PutExplorationReport", err)
	}
	ip := r.IP.String()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO exploration_reports (ip, doc, report_version, updated_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (ip) DO UPDATE SET doc = EXCLUDED.doc, report_version = EXCLUDED.report_version, updated_at = EXCLUDED.updated_at
		 WHERE exploration_reports.report_version = $5`,
		ip, doc, r.ReportVersion, r.UpdatedAt, expectedVersion)
	if err != nil {
		return carbideerr.Internal("PutExplorationReport", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetExplorationReport(ctx, ip); getErr == nil {
			return carbideerr.ConcurrentModification("PutExplorationReport", "EndpointExplorationReport", ip, expectedVersion)
		}
	}
	return nil
}

func (s *Store) ListExplorationReports(ctx context.Context) ([]model.EndpointExplorationReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM exploration_reports`)
	if err != nil {
		return nil, carbideerr.Internal("ListExplorationReports", err)
	}
	defer rows.Close()
	var out []model.EndpointExplorationReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListExplorationReports", err)
		}
		var r model.EndpointExplorationReport
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, carbideerr.Internal("ListExplorationReports", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) PutExploredManagedHost(ctx context.Context, h model.ExploredManagedHost) error {
	doc, err := json.Marshal(h)
	if err != nil {
		return carbideerr.Internal("PutExploredManagedHost", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO explored_managed_hosts (host_bmc_ip, doc) VALUES ($1,$2)
		 ON CONFLICT (host_bmc_ip) DO UPDATE SET doc = EXCLUDED.doc`,
		h.HostBmcIP.String(), doc)
	if err != nil {
		return carbideerr.Internal("PutExploredManagedHost", err)
	}
	return nil
}

func (s *Store) ListExploredManagedHosts(ctx context.Context) ([]model.ExploredManagedHost, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM explored_managed_hosts`)
	if err != nil {
		return nil, carbideerr.Internal("ListExploredManagedHosts", err)
	}
	defer rows.Close()
	var out []model.ExploredManagedHost
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListExploredManagedHosts", err)
		}
		var h model.ExploredManagedHost
		if err := json.Unmarshal(doc, &h); err != nil {
			return nil, carbideerr.Internal("ListExploredManagedHosts", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) GetProfile(ctx context.Context, id ids.ProfileId) (model.MeasurementSystemProfile, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM profiles WHERE id = $1`, id.String()).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MeasurementSystemProfile{}, carbideerr.NotFound("GetProfile", "MeasurementSystemProfile", id.String())
	}
	if err != nil {
		return model.MeasurementSystemProfile{}, carbideerr.Internal("GetProfile", err)
	}
	var p model.MeasurementSystemProfile
	if err := json.Unmarshal(doc, &p); err != nil {
		return model.MeasurementSystemProfile{}, carbideerr.Internal("GetProfile", err)
	}
	return p, nil
}

func (s *Store) FindProfileByAttributes(ctx context.Context, attrs []model.ProfileAttribute) (*model.MeasurementSystemProfile, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]string, len(attrs))
	for _, a := range attrs {
		want[a.Key] = a.Value
	}
	for _, p := range profiles {
		if len(p.Attributes) != len(attrs) {
			continue
		}
		match := true
		for _, a := range p.Attributes {
			if v, ok := want[a.Key]; !ok || v != a.Value {
				match = false
				break
			}
		}
		if match {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateProfile(ctx context.Context, p model.MeasurementSystemProfile) error {
	p.Version = 1
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	doc, err := json.Marshal(p)
	if err != nil {
		return carbideerr.Internal("CreateProfile", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (id, doc, version, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		p.ID.String(), doc, p.Version, now, now)
	if isUniqueViolation(err) {
		return carbideerr.AlreadyExists("CreateProfile", "MeasurementSystemProfile", p.ID.String())
	}
	if err != nil {
		return carbideerr.Internal("CreateProfile", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, p model.MeasurementSystemProfile, expectedVersion int64) error {
	p.Version = expectedVersion + 1
	p.UpdatedAt = time.Now()
	doc, err := json.Marshal(p)
	if err != nil {
		return carbideerr.Internal("UpdateProfile", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET doc = $1, version = $2, updated_at = $3 WHERE id = $4 AND version = $5`,
		doc, p.Version, p.UpdatedAt, p.ID.String(), expectedVersion)
	if err != nil {
		return carbideerr.Internal("UpdateProfile", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.ConcurrentModification("UpdateProfile", "MeasurementSystemProfile", p.ID.String(), expectedVersion)
	}
	return nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]model.MeasurementSystemProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM profiles`)
	if err != nil {
		return nil, carbideerr.Internal("ListProfiles", err)
	}
	defer rows.Close()
	var out []model.MeasurementSystemProfile
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListProfiles", err)
		}
		var p model.MeasurementSystemProfile
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, carbideerr.Internal("ListProfiles", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetBundle(ctx context.Context, id ids.BundleId) (model.MeasurementBundle, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM bundles WHERE id = $1`, id.String()).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MeasurementBundle{}, carbideerr.NotFound("GetBundle", "MeasurementBundle", id.String())
	}
	if err != nil {
		return model.MeasurementBundle{}, carbideerr.Internal("GetBundle", err)
	}
	var b model.MeasurementBundle
	if err := json.Unmarshal(doc, &b); err != nil {
		return model.MeasurementBundle{}, carbideerr.Internal("GetBundle", err)
	}
	return b, nil
}

func (s *Store) CreateBundle(ctx context.Context, b model.MeasurementBundle) error {
	b.Version = 1
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	doc, err := json.Marshal(b)
	if err != nil {
		return carbideerr.Internal("CreateBundle", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO bundles (id, profile_id, doc, version, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID.String(), b.ProfileID.String(), doc, b.Version, now, now)
	if isUniqueViolation(err) {
		return carbideerr.AlreadyExists("CreateBundle", "MeasurementBundle", b.ID.String())
	}
	if err != nil {
		return carbideerr.Internal("CreateBundle", err)
	}
	return nil
}

func (s *Store) UpdateBundle(ctx context.Context, b model.MeasurementBundle, expectedVersion int64) error {
	existing, err := s.GetBundle(ctx, b.ID)
	if err != nil {
		return err
	}
	if existing.State == model.BundleStateRevoked {
		return carbideerr.FailedPrecondition("UpdateBundle", "bundle is Revoked; no further state changes are permitted")
	}
	b.Version = expectedVersion + 1
	b.UpdatedAt = time.Now()
	doc, err := json.Marshal(b)
	if err != nil {
		return carbideerr.Internal("UpdateBundle", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE bundles SET doc = $1, version = $2, updated_at = $3 WHERE id = $4 AND version = $5`,
		doc, b.Version, b.UpdatedAt, b.ID.String(), expectedVersion)
	if err != nil {
		return carbideerr.Internal("UpdateBundle", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.ConcurrentModification("UpdateBundle", "MeasurementBundle", b.ID.String(), expectedVersion)
	}
	return nil
}

func (s *Store) ListBundlesForProfile(ctx context.Context, profileID ids.ProfileId) ([]model.MeasurementBundle, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM bundles WHERE profile_id = $1`, profileID.String())
	if err != nil {
		return nil, carbideerr.Internal("ListBundlesForProfile", err)
	}
	defer rows.Close()
	var out []model.MeasurementBundle
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListBundlesForProfile", err)
		}
		var b model.MeasurementBundle
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, carbideerr.Internal("ListBundlesForProfile", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBundle(ctx context.Context, id ids.BundleId) error {
	var refCount int
	ref, err := json.Marshal(id)
	if err != nil {
		return carbideerr.Internal("DeleteBundle", err)
	}
	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM journal WHERE doc->'MatchedBundle' = $1::jsonb`, string(ref)).Scan(&refCount)
	if err != nil {
		return carbideerr.Internal("DeleteBundle", err)
	}
	if refCount > 0 {
		return carbideerr.FailedPrecondition("DeleteBundle", "bundle is referenced by a journal row")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM bundles WHERE id = $1`, id.String())
	if err != nil {
		return carbideerr.Internal("DeleteBundle", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.NotFound("DeleteBundle", "MeasurementBundle", id.String())
	}
	return nil
}

func (s *Store) CreateReport(ctx context.Context, r model.MeasurementReport) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return carbideerr.Internal("CreateReport", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO reports (id, machine_id, doc) VALUES ($1,$2,$3)`,
		r.ID.String(), r.MachineID.String(), doc)
	if isUniqueViolation(err) {
		return carbideerr.AlreadyExists("CreateReport", "MeasurementReport", r.ID.String())
	}
	if err != nil {
		return carbideerr.Internal("CreateReport", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id ids.ReportId) (model.MeasurementReport, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM reports WHERE id = $1`, id.String()).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MeasurementReport{}, carbideerr.NotFound("GetReport", "MeasurementReport", id.String())
	}
	if err != nil {
		return model.MeasurementReport{}, carbideerr.Internal("GetReport", err)
	}
	var r model.MeasurementReport
	if err := json.Unmarshal(doc, &r); err != nil {
		return model.MeasurementReport{}, carbideerr.Internal("GetReport", err)
	}
	return r, nil
}

func (s *Store) ListReportsForMachine(ctx context.Context, machineID ids.MachineId) ([]model.MeasurementReport, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM reports WHERE machine_id = $1`, machineID.String())
	if err != nil {
		return nil, carbideerr.Internal("ListReportsForMachine", err)
	}
	defer rows.Close()
	var out []model.MeasurementReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListReportsForMachine", err)
		}
		var r model.MeasurementReport
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, carbideerr.Internal("ListReportsForMachine", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AppendJournal(ctx context.Context, j model.MeasurementJournal) error {
	doc, err := json.Marshal(j)
	if err != nil {
		return carbideerr.Internal("AppendJournal", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO journal (id, machine_id, doc, created_at) VALUES ($1,$2,$3,$4)`,
		j.ID.String(), j.MachineID.String(), doc, j.CreatedAt)
	if err != nil {
		return carbideerr.Internal("AppendJournal", err)
	}
	return nil
}

func (s *Store) ListJournalForMachine(ctx context.Context, machineID ids.MachineId) ([]model.MeasurementJournal, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM journal WHERE machine_id = $1 ORDER BY created_at ASC`, machineID.String())
	if err != nil {
		return nil, carbideerr.Internal("ListJournalForMachine", err)
	}
	defer rows.Close()
	var out []model.MeasurementJournal
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("ListJournalForMachine", err)
		}
		var j model.MeasurementJournal
		if err := json.Unmarshal(doc, &j); err != nil {
			return nil, carbideerr.Internal("ListJournalForMachine", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) CreateApproval(ctx context.Context, a model.MeasurementApproval) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return carbideerr.Internal("CreateApproval", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO approvals (id, target_kind, machine_id, profile_id, doc, consumed) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID.String(), string(a.Target.Kind), nullableMachineID(a), nullableProfileID(a), doc, a.Consumed)
	if err != nil {
		return carbideerr.Internal("CreateApproval", err)
	}
	return nil
}

func nullableMachineID(a model.MeasurementApproval) *string {
	if a.Target.Kind != model.ApprovalTargetSpecificMachine {
		return nil
	}
	v := a.Target.MachineID.String()
	return &v
}

func nullableProfileID(a model.MeasurementApproval) *string {
	if a.Target.Kind != model.ApprovalTargetProfile {
		return nil
	}
	v := a.Target.ProfileID.String()
	return &v
}

func (s *Store) ConsumeApproval(ctx context.Context, id ids.ApprovalId) error {
	tag, err := s.pool.Exec(ctx, `UPDATE approvals SET consumed = TRUE WHERE id = $1`, id.String())
	if err != nil {
		return carbideerr.Internal("ConsumeApproval", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.NotFound("ConsumeApproval", "MeasurementApproval", id.String())
	}
	return nil
}

func (s *Store) listApprovals(ctx context.Context, where string, arg any) ([]model.MeasurementApproval, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM approvals WHERE consumed = FALSE AND `+where, arg)
	if err != nil {
		return nil, carbideerr.Internal("listApprovals", err)
	}
	defer rows.Close()
	var out []model.MeasurementApproval
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, carbideerr.Internal("listApprovals", err)
		}
		var a model.MeasurementApproval
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, carbideerr.Internal("listApprovals", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListApprovalsForMachine(ctx context.Context, machineID ids.MachineId) ([]model.MeasurementApproval, error) {
	return s.listApprovals(ctx, `machine_id = $1`, machineID.String())
}

func (s *Store) ListApprovalsForProfile(ctx context.Context, profileID ids.ProfileId) ([]model.MeasurementApproval, error) {
	return s.listApprovals(ctx, `profile_id = $1`, profileID.String())
}

func (s *Store) ListApprovalsWildcard(ctx context.Context) ([]model.MeasurementApproval, error) {
	return s.listApprovals(ctx, `target_kind = $1`, string(model.ApprovalTargetAnyMachine))
}

func (s *Store) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (persistence.Lease, error) {
	now := time.Now()
	expires := now.Add(ttl)
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO work_leases (name, owner, acquired_at, expires_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
		 WHERE work_leases.expires_at < $5 OR work_leases.owner = $2`,
		name, owner, now, expires, now)
	if err != nil {
		return persistence.Lease{}, carbideerr.Internal("AcquireLease", err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.Lease{}, carbideerr.FailedPrecondition("AcquireLease", "lease "+name+" held by another owner")
	}
	return persistence.Lease{Name: name, Owner: owner, AcquiredAt: now, ExpiresAt: expires}, nil
}

func (s *Store) RenewLease(ctx context.Context, name, owner string, ttl time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE work_leases SET expires_at = $1 WHERE name = $2 AND owner = $3`,
		time.Now().Add(ttl), name, owner)
	if err != nil {
		return carbideerr.Internal("RenewLease", err)
	}
	if tag.RowsAffected() == 0 {
		return carbideerr.FailedPrecondition("RenewLease", "lease "+name+" not held by this owner")
	}
	return nil
}

func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM work_leases WHERE name = $1 AND owner = $2`, name, owner)
	if err != nil {
		return carbideerr.Internal("ReleaseLease", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && pgErrCode(err) == "23505"
}

// pgErrCode extracts a PostgreSQL error code without importing pgconn
// directly at every call site.
func pgErrCode(err error) string {
	type sqlStater interface{ SQLState() string }
	var pgErr sqlStater
	if errors.As(err, &pgErr) {
		return pgErr.SQLState()
	}
	return ""
}
