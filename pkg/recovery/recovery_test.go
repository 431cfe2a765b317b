package recovery

import (
	"testing"
	"time"
)

func TestNextStepSchedule(t *testing.T) {
	cases := []struct {
		attemptCount int
		want         Step
	}{
		{0, StepReboot},
		{1, StepReboot},
		{2, StepPowerOff},
		{3, StepPowerOn},
		{4, StepReboot},
		{5, StepReboot},
		{6, StepPowerOff},
	}
	for _, tc := range cases {
		if got := NextStep(tc.attemptCount); got != tc.want {
			t.Fatalf("NextStep(%d) = %v, want %v", tc.attemptCount, got, tc.want)
		}
	}
}

func TestNextStepNegativeAttemptCountClampsToZero(t *testing.T) {
	if got := NextStep(-1); got != StepReboot {
		t.Fatalf("NextStep(-1) = %v, want Reboot", got)
	}
}

func TestDueForEscalationNoOutstandingReboot(t *testing.T) {
	e := DefaultEscalator()
	if e.DueForEscalation(nil, time.Now()) {
		t.Fatalf("expected no escalation due when no reboot is outstanding")
	}
}

func TestDueForEscalationWithinLivenessWindow(t *testing.T) {
	e := DefaultEscalator()
	now := time.Now()
	requested := now.Add(-1 * time.Minute)
	if e.DueForEscalation(&requested, now) {
		t.Fatalf("expected no escalation while still within the liveness window")
	}
}

func TestDueForEscalationAfterLivenessWindow(t *testing.T) {
	e := DefaultEscalator()
	now := time.Now()
	requested := now.Add(-e.LivenessWindow - time.Second)
	if !e.DueForEscalation(&requested, now) {
		t.Fatalf("expected escalation to be due once the liveness window has elapsed")
	}
}
