package exploration

import (
	"testing"

	"github.com/carbide-fleet/carbide/pkg/model"
)

func TestShouldAttemptLogin(t *testing.T) {
	cases := []struct {
		status  model.CredentialStatus
		changed bool
		want    bool
	}{
		{model.CredentialStatusOK, false, true},
		{model.CredentialStatusIntermittentUnauthorized, false, true},
		{model.CredentialStatusUnauthorized, false, false},
		{model.CredentialStatusUnauthorized, true, true},
		{model.CredentialStatusAvoidLockout, false, false},
		{model.CredentialStatusAvoidLockout, true, true},
	}
	for _, c := range cases {
		if got := ShouldAttemptLogin(c.status, c.changed); got != c.want {
			t.Errorf("ShouldAttemptLogin(%v, %v) = %v, want %v", c.status, c.changed, got, c.want)
		}
	}
}

func TestClassifyLoginFailureEscalation(t *testing.T) {
	status, flaps := model.CredentialStatusOK, 0
	for i := 1; i < IntermittentUnauthorizedThreshold; i++ {
		status, flaps = ClassifyLoginFailure(status, flaps)
		if status != model.CredentialStatusIntermittentUnauthorized {
			t.Fatalf("flap %d: expected IntermittentUnauthorized, got %v", i, status)
		}
		if flaps != i {
			t.Fatalf("flap %d: expected flap count %d, got %d", i, i, flaps)
		}
	}
	status, flaps = ClassifyLoginFailure(status, flaps)
	if status != model.CredentialStatusUnauthorized {
		t.Fatalf("expected escalation to Unauthorized at threshold, got %v (flaps=%d)", status, flaps)
	}
}

func TestClearOnCredentialRotation(t *testing.T) {
	r := &model.EndpointExplorationReport{
		CredentialStatus:      model.CredentialStatusUnauthorized,
		UnauthorizedFlapCount: 5,
	}
	ClearOnCredentialRotation(r)
	if r.CredentialStatus != model.CredentialStatusOK {
		t.Errorf("CredentialStatus = %v, want OK", r.CredentialStatus)
	}
	if r.UnauthorizedFlapCount != 0 {
		t.Errorf("UnauthorizedFlapCount = %d, want 0", r.UnauthorizedFlapCount)
	}
}
