// Credential lockout guard: §4.2 step 1 and §8 invariant 6 / scenario S6.
// Refusing to retry a BMC already marked Unauthorized under an unchanged
// credential set is a safety invariant, not an optimization — repeated
// logins against a locked-out account risk cascading the lockout to every
// other consumer of that account.
package exploration

import "github.com/carbide-fleet/carbide/pkg/model"

// IntermittentUnauthorizedThreshold bounds how many consecutive
// Unauthorized responses are tolerated as a flap before escalating to the
// durable Unauthorized/AvoidLockout state.
const IntermittentUnauthorizedThreshold = 3

// ShouldAttemptLogin reports whether the exploration engine may issue a new
// login attempt against an endpoint, given its last-known credential status
// and whether the site's credential set has changed since that status was
// recorded.
func ShouldAttemptLogin(status model.CredentialStatus, credentialSetChanged bool) bool {
	switch status {
	case model.CredentialStatusUnauthorized, model.CredentialStatusAvoidLockout:
		return credentialSetChanged
	default:
		return true
	}
}

// ClassifyLoginFailure computes the next CredentialStatus and flap count
// after a failed login, implementing the IntermittentUnauthorized ->
// Unauthorized escalation: a bounded number of flaps are tolerated before
// the lockout guard kicks in for good.
func ClassifyLoginFailure(priorStatus model.CredentialStatus, priorFlapCount int) (model.CredentialStatus, int) {
	flapCount := priorFlapCount + 1
	if flapCount >= IntermittentUnauthorizedThreshold {
		return model.CredentialStatusUnauthorized, flapCount
	}
	return model.CredentialStatusIntermittentUnauthorized, flapCount
}

// ClearOnCredentialRotation resets every endpoint's lockout bookkeeping;
// called once when the process-wide credential set is rotated (§5
// "Credential set").
func ClearOnCredentialRotation(r *model.EndpointExplorationReport) {
	r.CredentialStatus = model.CredentialStatusOK
	r.UnauthorizedFlapCount = 0
}
