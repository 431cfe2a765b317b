package reconciler

import (
	"testing"
	"time"

	"github.com/carbide-fleet/carbide/pkg/recovery"
)

func TestDecideRebootNoopWhenNotWanted(t *testing.T) {
	d := DecideReboot(recovery.DefaultEscalator(), false, nil, 0, time.Now())
	if d.Issue {
		t.Fatalf("expected no reboot decision when wantReboot is false")
	}
}

func TestDecideRebootIssuesFirstRequest(t *testing.T) {
	d := DecideReboot(recovery.DefaultEscalator(), true, nil, 0, time.Now())
	if !d.Issue || d.Step != recovery.StepReboot {
		t.Fatalf("got %+v, want an issued Reboot step on first request", d)
	}
}

func TestDecideRebootHoldsWithinLivenessWindow(t *testing.T) {
	now := time.Now()
	requested := now.Add(-1 * time.Minute)
	d := DecideReboot(recovery.DefaultEscalator(), true, &requested, 0, now)
	if d.Issue {
		t.Fatalf("expected no new reboot while the prior one is still within its liveness window")
	}
}

func TestDecideRebootEscalatesAfterLivenessWindowExpires(t *testing.T) {
	now := time.Now()
	requested := now.Add(-1 * time.Hour)
	d := DecideReboot(recovery.DefaultEscalator(), true, &requested, 2, now)
	if !d.Issue || d.Step != recovery.StepPowerOff {
		t.Fatalf("got %+v, want escalation to PowerOff after 2 failed attempts", d)
	}
}
