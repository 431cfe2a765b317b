package redfish

import (
	"errors"
	"testing"
)

var errPowerStateUnavailable = errors.New("power state unavailable")

func TestIsPrivateIPv4(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.100", true},
		{"10.0.0.50", true},
		{"172.16.4.4", true},
		{"127.0.0.1", true},
		{"8.8.8.8", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := IsPrivateIPv4(tt.ip); got != tt.want {
			t.Errorf("IsPrivateIPv4(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestIsPrivateIPv6(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"fe80::1234:5678:90ab:cdef", true},
		{"::1", true},
		{"2001:db8::1", false},
	}
	for _, tt := range tests {
		if got := IsPrivateIPv6(tt.ip); got != tt.want {
			t.Errorf("IsPrivateIPv6(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestMockClientSetBootSourceISORejectsConflictingMedia(t *testing.T) {
	m := NewMockClient()
	if err := m.SetBootSourceISO(nil, "http://example.com/a.iso"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := m.SetBootSourceISO(nil, "http://example.com/b.iso"); err == nil {
		t.Fatal("expected error when a different image is already inserted")
	}
	if err := m.EjectVirtualMedia(nil); err != nil {
		t.Fatalf("eject: %v", err)
	}
	if err := m.SetBootSourceISO(nil, "http://example.com/b.iso"); err != nil {
		t.Fatalf("insert after eject: %v", err)
	}
}

func TestMockClientShouldFail(t *testing.T) {
	m := NewMockClient()
	m.ShouldFail["GetPowerState"] = errPowerStateUnavailable
	if _, err := m.GetPowerState(nil); err != errPowerStateUnavailable {
		t.Fatalf("expected injected error, got %v", err)
	}
}
