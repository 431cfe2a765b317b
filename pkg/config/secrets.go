package config

import (
	"fmt"
	"os"
	"strings"
)

// SecretResolver resolves a Machine's CredentialSecretRef into a BMC
// username/password pair. Carbide treats credential storage as an external
// concern (§1 Non-goals keep RBAC and secret storage out of scope); this is
// the one seam the reconciler and exploration engine depend on to reach it.
type SecretResolver func(ref string) (username, password string, err error)

// EnvSecretResolver resolves a ref of the form "envgroup/name" against
// CARBIDE_SECRET_<GROUP>_<NAME>_USERNAME / _PASSWORD environment variables,
// the simplest resolver that satisfies the contract without depending on
// any particular secret store.
func EnvSecretResolver(ref string) (string, string, error) {
	key := strings.ToUpper(strings.ReplaceAll(ref, "/", "_"))
	key = strings.ReplaceAll(key, "-", "_")
	user, ok := os.LookupEnv(fmt.Sprintf("CARBIDE_SECRET_%s_USERNAME", key))
	if !ok {
		return "", "", fmt.Errorf("missing credentials for %q: no CARBIDE_SECRET_%s_USERNAME", ref, key)
	}
	pass, ok := os.LookupEnv(fmt.Sprintf("CARBIDE_SECRET_%s_PASSWORD", key))
	if !ok {
		return "", "", fmt.Errorf("missing credentials for %q: no CARBIDE_SECRET_%s_PASSWORD", ref, key)
	}
	return user, pass, nil
}
