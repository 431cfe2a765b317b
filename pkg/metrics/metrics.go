// Package metrics carries Carbide's prometheus.client_golang instruments,
// adapted from the teacher's internal/metrics package: gauges for state
// distribution, counters for closed-enumeration outcomes (pairing blockers,
// preingestion failure kinds, attestation verdicts), tagged by the same
// label sets the design calls out rather than free-form strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "carbide"
	Subsystem = "reconciler"
)

var (
	// ManagedHostStatesGauge tracks the distribution of top-level
	// ManagedHostState kinds across every Machine at the end of each
	// iteration.
	ManagedHostStatesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "managed_host_states",
			Help:      "Number of managed hosts in each top-level ManagedHostState.",
		},
		[]string{"state"},
	)

	ReconcileIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "iterations_total",
			Help:      "Total reconciliation iterations, tagged by outcome.",
		},
		[]string{"outcome"}, // Transition | Wait | Error
	)

	BMCCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "bmc_commands_total",
			Help:      "BMC commands issued by the reconciler, tagged by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	RebootEscalationStepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "reboot_escalation_step_total",
			Help:      "Reboot escalation schedule steps taken, tagged by the step issued.",
		},
		[]string{"step"}, // Reboot | PowerOff | PowerOn
	)

	// Exploration metrics.

	ExplorationEndpointsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "carbide",
			Subsystem: "exploration",
			Name:      "endpoints_total",
			Help:      "Number of known endpoints, tagged by endpoint type.",
		},
		[]string{"endpoint_type"},
	)

	EndpointExplorationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbide",
			Subsystem: "exploration",
			Name:      "endpoint_explorations_failures_total",
			Help:      "Exploration failures, tagged by carbideerr Kind.",
		},
		[]string{"kind"},
	)

	PreingestionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbide",
			Subsystem: "exploration",
			Name:      "preingestion_failures_total",
			Help:      "Preingestion pipeline failures, tagged by failure reason.",
		},
		[]string{"reason"},
	)

	PairingBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbide",
			Subsystem: "exploration",
			Name:      "pairing_blocked_total",
			Help:      "Host/DPU pairing attempts blocked, tagged by the closed PairingBlockerReason enumeration.",
		},
		[]string{"reason"},
	)

	// Attestation metrics.

	AttestationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbide",
			Subsystem: "attestation",
			Name:      "outcomes_total",
			Help:      "Report intake outcomes, tagged by resulting AttestationVerdict.",
		},
		[]string{"verdict"},
	)

	BundleAutoPromotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carbide",
			Subsystem: "attestation",
			Name:      "bundle_auto_promotions_total",
			Help:      "New Active bundles auto-promoted from an approval match, tagged by approval scope.",
		},
		[]string{"scope"},
	)
)

// MustRegister registers every Carbide collector against reg. Call once at
// process start; panics on a duplicate registration, matching the fail-fast
// convention the teacher applies at controller-manager bootstrap.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ManagedHostStatesGauge,
		ReconcileIterationsTotal,
		BMCCommandsTotal,
		RebootEscalationStepTotal,
		ExplorationEndpointsTotal,
		EndpointExplorationFailuresTotal,
		PreingestionFailuresTotal,
		PairingBlockedTotal,
		AttestationOutcomesTotal,
		BundleAutoPromotionsTotal,
	)
}
