package reconciler

import (
	"testing"
	"time"

	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestOutcomeConstructors(t *testing.T) {
	next := model.ManagedHostState{Kind: model.ManagedHostStateReady}
	if o := Transition(next); o.Kind != OutcomeTransition || o.NextState != next {
		t.Fatalf("got %+v, want a Transition outcome carrying next", o)
	}

	if o := Wait("waiting for BMC"); o.Kind != OutcomeWait || o.WaitReason != "waiting for BMC" {
		t.Fatalf("got %+v, want a Wait outcome carrying the reason", o)
	}

	if o := Error("InvalidState", "missing BMC address"); o.Kind != OutcomeError || o.ErrorKind != "InvalidState" || o.ErrorDetail != "missing BMC address" {
		t.Fatalf("got %+v, want an Error outcome carrying kind and detail", o)
	}
}

func TestWaitForRebootCarriesEscalationBookkeeping(t *testing.T) {
	requestedAt := time.Now()
	o := WaitForReboot("issued escalation step", 2, requestedAt)
	if o.Kind != OutcomeWait || !o.RebootIssued || o.RebootAttemptCount != 2 || !o.RebootRequestedAt.Equal(requestedAt) {
		t.Fatalf("got %+v, want a Wait outcome that also carries reboot bookkeeping", o)
	}
}

func TestFailedBuildsFailedManagedHostState(t *testing.T) {
	s := Failed("no BMC IP configured")
	if s.Kind != model.ManagedHostStateFailed || s.FailureDetails != "no BMC IP configured" {
		t.Fatalf("got %+v, want a Failed state carrying the detail", s)
	}
}
