package config

import "testing"

func TestEnvSecretResolverResolvesAndNormalizesRef(t *testing.T) {
	t.Setenv("CARBIDE_SECRET_RACK1_HOST_01_USERNAME", "admin")
	t.Setenv("CARBIDE_SECRET_RACK1_HOST_01_PASSWORD", "hunter2")

	user, pass, err := EnvSecretResolver("rack1/host-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "admin" || pass != "hunter2" {
		t.Fatalf("got (%q, %q), want (admin, hunter2)", user, pass)
	}
}

func TestEnvSecretResolverMissingCredentials(t *testing.T) {
	if _, _, err := EnvSecretResolver("no-such-ref"); err == nil {
		t.Fatalf("expected an error when no environment variables are set")
	}
}

func TestEnvSecretResolverMissingPasswordOnly(t *testing.T) {
	t.Setenv("CARBIDE_SECRET_PARTIAL_USERNAME", "admin")
	if _, _, err := EnvSecretResolver("partial"); err == nil {
		t.Fatalf("expected an error when only the username is set")
	}
}
