// Engine ties the fingerprinting, position-merge, preingestion, and pairing
// building blocks into the per-endpoint exploration contract described by
// §4.2, fanning out across candidate BMC IPs under a bounded concurrency
// limit (golang.org/x/sync/errgroup, grounded in the teacher's indirect
// dependency on the same package via its k8s.io client libraries) and
// holding one coordination lease per endpoint for the duration of its
// exploration (§4.2 "Concurrency").
package exploration

import (
	"context"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
	"github.com/carbide-fleet/carbide/pkg/coordination"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/metrics"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/persistence"
	"github.com/carbide-fleet/carbide/pkg/redfish"
)

// CredentialSet is the process-wide, read-mostly BMC credential
// configuration (§5 "Credential set"): one username/password pair used
// against every candidate endpoint, plus the timestamp of its last
// rotation, used to decide whether an endpoint's Unauthorized mark has gone
// stale.
type CredentialSet struct {
	Username   string
	Password   string
	RotatedAt  time.Time
}

// Config tunes one Engine instance.
type Config struct {
	CandidateIPs        []net.IP
	MaxConcurrentProbes int
	LeaseDuration       time.Duration
	MaxFirmwareWait     time.Duration
	PowerDrainsPerStep  int
	PowerDrainInterval  time.Duration
	DesiredFirmware     model.FirmwareInventory
	Insecure            bool
}

// Engine is the site exploration and preingestion engine.
type Engine struct {
	store    persistence.Store
	leases   *coordination.LeaseCoordinator
	factory  redfish.ClientFactory
	log      logr.Logger
	cfg      Config
	creds    CredentialSet
}

// New builds an Engine. owner identifies this process instance for lease
// ownership (see pkg/coordination).
func New(store persistence.Store, factory redfish.ClientFactory, owner string, cfg Config, creds CredentialSet, log logr.Logger) *Engine {
	return &Engine{
		store:   store,
		leases:  coordination.New(store, owner),
		factory: factory,
		log:     log,
		cfg:     cfg,
		creds:   creds,
	}
}

// SetCredentials installs a rotated credential set, which — per §5 — forces
// every endpoint's lockout bookkeeping to clear on its next exploration pass
// once RotatedAt is after the endpoint's last recorded failure.
func (e *Engine) SetCredentials(creds CredentialSet) {
	e.creds = creds
}

// RunOnce performs one exploration cycle: explore every candidate endpoint
// under bounded fan-out, then run pairing over the resulting reports.
func (e *Engine) RunOnce(ctx context.Context) error {
	if err := e.exploreAll(ctx); err != nil {
		return err
	}
	return e.pairAndPersist(ctx)
}

func (e *Engine) exploreAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.MaxConcurrentProbes
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)

	for _, ip := range e.cfg.CandidateIPs {
		ip := ip
		g.Go(func() error {
			if err := e.exploreOne(gctx, ip); err != nil {
				e.log.V(1).Info("exploration of endpoint failed", "ip", ip.String(), "error", err)
			}
			return nil // a single endpoint's failure never aborts the fan-out
		})
	}
	return g.Wait()
}

// exploreOne implements §4.2's per-endpoint contract: login (subject to the
// lockout guard), fetch inventory, classify, parse firmware, merge
// position, advance preingestion, and persist.
func (e *Engine) exploreOne(ctx context.Context, ip net.IP) error {
	leaseName := coordination.EndpointLeaseName(ip.String())
	ran, err := e.leases.WithLease(ctx, leaseName, e.cfg.LeaseDuration, func(ctx context.Context) error {
		return e.exploreLocked(ctx, ip)
	})
	if err != nil {
		return err
	}
	if !ran {
		// Another iteration already holds this endpoint's lease; skip, not
		// an error.
		return nil
	}
	return nil
}

func (e *Engine) exploreLocked(ctx context.Context, ip net.IP) error {
	report, err := e.store.GetExplorationReport(ctx, ip.String())
	isNew := false
	if err != nil {
		if e, ok := carbideerr.As(err); !ok || e.Kind != carbideerr.KindNotFound {
			return err
		}
		report = model.EndpointExplorationReport{IP: ip, CredentialStatus: model.CredentialStatusOK}
		isNew = true
	}

	credentialSetChanged := report.LastErrorAt != nil && e.creds.RotatedAt.After(*report.LastErrorAt)
	if !ShouldAttemptLogin(report.CredentialStatus, credentialSetChanged) {
		return nil // AvoidLockout: zero requests leave the process for this endpoint
	}
	if credentialSetChanged {
		ClearOnCredentialRotation(&report)
	}

	client, loginErr := e.factory(ctx, ip.String(), e.creds.Username, e.creds.Password, e.cfg.Insecure)
	if loginErr != nil {
		return e.recordLoginFailure(ctx, report, isNew, loginErr)
	}
	defer client.Close(ctx)

	return e.refreshReport(ctx, report, isNew, client)
}

func (e *Engine) recordLoginFailure(ctx context.Context, report model.EndpointExplorationReport, isNew bool, loginErr error) error {
	now := time.Now()
	report.LastError = loginErr.Error()
	report.LastErrorAt = &now

	kind := carbideerr.KindOf(loginErr)
	metrics.EndpointExplorationFailuresTotal.WithLabelValues(string(kind)).Inc()

	if kind == carbideerr.KindUnauthorized {
		report.CredentialStatus, report.UnauthorizedFlapCount = ClassifyLoginFailure(report.CredentialStatus, report.UnauthorizedFlapCount)
	}
	return e.persist(ctx, report, isNew)
}

func (e *Engine) refreshReport(ctx context.Context, report model.EndpointExplorationReport, isNew bool, client redfish.Client) error {
	sysInfo, sysErr := client.GetSystemInfo(ctx)
	chassis, chassisErr := client.GetChassisInfo(ctx)
	managers, _ := client.GetManagers(ctx)
	firmwareRaw, _ := client.GetFirmwareInventory(ctx)
	netAddrs, _ := client.GetNetworkAddresses(ctx)

	report.CredentialStatus = model.CredentialStatusOK
	report.UnauthorizedFlapCount = 0
	report.LastError = ""
	report.LastErrorAt = nil

	var systemIDs []string
	if sysErr == nil && sysInfo != nil {
		systemIDs = []string{sysInfo.ID}
		report.Vendor = sysInfo.Manufacturer
		report.Discovery.DMIProductSerial = sysInfo.SerialNumber
		report.Discovery.DMIProductName = sysInfo.Model
		report.Discovery.Vendor = sysInfo.Manufacturer
	}
	var partNumbers []string
	if chassisErr == nil {
		for _, c := range chassis {
			partNumbers = append(partNumbers, c.PartNumber)
			if report.Discovery.DMIChassisSerial == "" {
				report.Discovery.DMIChassisSerial = c.SerialNumber
			}
		}
		slot, tray, topo, rev := MergeChassisPosition(chassis)
		report.Discovery.PhysicalSlot = slot
		report.Discovery.ComputeTrayIndex = tray
		report.Discovery.TopologyID = topo
		report.Discovery.RevisionID = rev
	}
	report.SystemIDs = systemIDs
	report.ChassisPartNumbers = partNumbers
	report.Firmware = ParseFirmwareInventory(firmwareRaw)
	_ = managers

	for _, addr := range netAddrs {
		if report.PF0MAC == "" && addr.InterfaceName == "PF0" {
			report.PF0MAC = addr.MACAddress
		}
		if report.BootInterfaceMAC == "" && addr.InterfaceName != "" {
			report.BootInterfaceMAC = addr.MACAddress
		}
	}

	report.Type = ClassifyEndpoint(systemIDs, partNumbers, sysErr == nil && sysInfo != nil, chassisErr == nil && len(chassis) > 0)
	metrics.ExplorationEndpointsTotal.WithLabelValues(string(report.Type)).Inc()

	if report.Type == model.EndpointTypeDpuBMC {
		if attrs, err := client.GetBIOSAttributes(ctx); err == nil {
			report.NicMode = ParseNicMode(attrs)
		}
	}

	desired := e.cfg.DesiredFirmware
	hostIsOn := true
	if report.Type == model.EndpointTypeHostBMC {
		if ps, err := client.GetPowerState(ctx); err == nil {
			hostIsOn = string(ps) == "On"
		}
	}
	deps := Deps{
		Now:                time.Now(),
		MaxFirmwareWait:    e.cfg.MaxFirmwareWait,
		PowerDrainsPerStep: e.cfg.PowerDrainsPerStep,
		PowerDrainInterval: e.cfg.PowerDrainInterval,
	}
	next := Advance(report.Preingestion, report.Firmware, desired, hostIsOn, deps)
	if next.Kind == model.PreingestionRecheckVersionsAfterFailure {
		metrics.PreingestionFailuresTotal.WithLabelValues(next.FailureReason).Inc()
	}
	report.Preingestion = next

	if next.Kind == model.PreingestionComplete && report.DerivedMachineID == nil {
		machineType := model.MachineTypeHost
		machineKind := ids.MachineKindHost
		if report.Type == model.EndpointTypeDpuBMC {
			machineType = model.MachineTypeDpu
			machineKind = ids.MachineKindDpu
		}
		hash := DeriveMachineIDHash(report.Discovery, machineType)
		mid := ids.MachineId{Kind: machineKind, UUID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(hash))}
		report.DerivedMachineID = &mid
	}

	return e.persist(ctx, report, isNew)
}

func (e *Engine) persist(ctx context.Context, report model.EndpointExplorationReport, isNew bool) error {
	expected := int64(0)
	if !isNew {
		expected = report.ReportVersion
	}
	return e.store.PutExplorationReport(ctx, report, expected)
}

func (e *Engine) pairAndPersist(ctx context.Context) error {
	reports, err := e.store.ListExplorationReports(ctx)
	if err != nil {
		return err
	}
	for _, h := range PairHosts(reports) {
		for _, blocker := range h.BlockedBy {
			metrics.PairingBlockedTotal.WithLabelValues(string(blocker)).Inc()
		}
		if err := e.store.PutExploredManagedHost(ctx, h); err != nil {
			return err
		}
	}
	return nil
}
