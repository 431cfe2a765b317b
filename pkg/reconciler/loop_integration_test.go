package reconciler_test

import (
	"context"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carbide-fleet/carbide/pkg/config"
	"github.com/carbide-fleet/carbide/pkg/ids"
	"github.com/carbide-fleet/carbide/pkg/model"
	"github.com/carbide-fleet/carbide/pkg/persistence/memstore"
	"github.com/carbide-fleet/carbide/pkg/reconciler"
)

var _ = Describe("Loop.RunOnce", func() {
	var (
		ctx   context.Context
		store *memstore.Store
		loop  *reconciler.Loop
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memstore.New()
		loop = &reconciler.Loop{
			Store:      store,
			Reconciler: config.ReconcilerConfig{MaxConcurrentHosts: 4},
			Log:        logr.Discard(),
		}
	})

	It("moves a Ready host with an instance desire into Assigned", func() {
		host := model.Machine{
			ID:    ids.NewMachineId(ids.MachineKindHost),
			Type:  model.MachineTypeHost,
			State: model.ManagedHostState{Kind: model.ManagedHostStateReady},
		}
		Expect(store.CreateMachine(ctx, host)).To(Succeed())
		Expect(store.PutInstanceDesire(ctx, model.InstanceDesire{TargetMachineID: host.ID})).To(Succeed())

		Expect(loop.RunOnce(ctx)).To(Succeed())

		updated, err := store.GetMachine(ctx, host.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.State.Kind).To(Equal(model.ManagedHostStateAssigned))
		Expect(updated.State.InstanceState).To(Equal(model.InstanceStateBootingWithDiscoveryImage))
	})

	It("leaves a Ready host with no instance desire untouched", func() {
		host := model.Machine{
			ID:    ids.NewMachineId(ids.MachineKindHost),
			Type:  model.MachineTypeHost,
			State: model.ManagedHostState{Kind: model.ManagedHostStateReady},
		}
		Expect(store.CreateMachine(ctx, host)).To(Succeed())

		Expect(loop.RunOnce(ctx)).To(Succeed())

		updated, err := store.GetMachine(ctx, host.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.State.Kind).To(Equal(model.ManagedHostStateReady))
		Expect(updated.StateVersion).To(Equal(int64(1)), "a Wait outcome must not write the machine back")
	})

	It("preempts into Quarantined regardless of top-level state", func() {
		host := model.Machine{
			ID:        ids.NewMachineId(ids.MachineKindHost),
			Type:      model.MachineTypeHost,
			State:     model.ManagedHostState{Kind: model.ManagedHostStateReady},
			Quarantine: model.QuarantineState{Quarantined: true, Mode: model.QuarantineModeManual, Reason: "operator request"},
		}
		Expect(store.CreateMachine(ctx, host)).To(Succeed())

		Expect(loop.RunOnce(ctx)).To(Succeed())

		updated, err := store.GetMachine(ctx, host.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.State.Kind).To(Equal(model.ManagedHostStateQuarantined))
	})

	It("resumes a cleared quarantine into Ready", func() {
		host := model.Machine{
			ID:    ids.NewMachineId(ids.MachineKindHost),
			Type:  model.MachineTypeHost,
			State: model.ManagedHostState{Kind: model.ManagedHostStateQuarantined},
		}
		Expect(store.CreateMachine(ctx, host)).To(Succeed())

		Expect(loop.RunOnce(ctx)).To(Succeed())

		updated, err := store.GetMachine(ctx, host.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.State.Kind).To(Equal(model.ManagedHostStateReady))
	})

	It("leaves a Failed host waiting for admin intervention", func() {
		host := model.Machine{
			ID:    ids.NewMachineId(ids.MachineKindHost),
			Type:  model.MachineTypeHost,
			State: model.ManagedHostState{Kind: model.ManagedHostStateFailed, FailureDetails: "boom"},
		}
		Expect(store.CreateMachine(ctx, host)).To(Succeed())

		Expect(loop.RunOnce(ctx)).To(Succeed())

		updated, err := store.GetMachine(ctx, host.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.State.Kind).To(Equal(model.ManagedHostStateFailed))
	})

	It("fans out across multiple hosts independently in one pass", func() {
		readyWithDesire := model.Machine{ID: ids.NewMachineId(ids.MachineKindHost), Type: model.MachineTypeHost, State: model.ManagedHostState{Kind: model.ManagedHostStateReady}}
		readyWithoutDesire := model.Machine{ID: ids.NewMachineId(ids.MachineKindHost), Type: model.MachineTypeHost, State: model.ManagedHostState{Kind: model.ManagedHostStateReady}}
		Expect(store.CreateMachine(ctx, readyWithDesire)).To(Succeed())
		Expect(store.CreateMachine(ctx, readyWithoutDesire)).To(Succeed())
		Expect(store.PutInstanceDesire(ctx, model.InstanceDesire{TargetMachineID: readyWithDesire.ID})).To(Succeed())

		Expect(loop.RunOnce(ctx)).To(Succeed())

		a, err := store.GetMachine(ctx, readyWithDesire.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.State.Kind).To(Equal(model.ManagedHostStateAssigned))

		b, err := store.GetMachine(ctx, readyWithoutDesire.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.State.Kind).To(Equal(model.ManagedHostStateReady))
	})
})
