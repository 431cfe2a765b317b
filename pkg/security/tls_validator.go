// Package security holds ambient transport-security checks used before
// Carbide trusts a BMC endpoint enough to store credentials against it.
package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// TLSValidator inspects the certificate presented by a BMC's HTTPS endpoint.
type TLSValidator struct {
	CustomCAs       *x509.CertPool
	Timeout         time.Duration
	AllowSelfSigned bool
}

// NewTLSValidator returns a validator with a conservative default timeout.
func NewTLSValidator() *TLSValidator {
	return &TLSValidator{
		Timeout:         30 * time.Second,
		AllowSelfSigned: false,
	}
}

// ValidationResult is the outcome of inspecting one endpoint's certificate.
type ValidationResult struct {
	Valid        bool
	Warnings     []string
	Errors       []string
	Certificate  *x509.Certificate
	CertChain    []*x509.Certificate
	Expiry       time.Time
	IsSelfSigned bool
	SANs         []string
}

// ValidateTLSEndpoint dials endpoint, fetches its certificate chain, and
// runs it through the expiry/hostname/key-usage checks. It never returns an
// error for a bad certificate — that is recorded in result.Errors for the
// caller to inspect. With AllowSelfSigned set, a self-signed certificate is
// recorded as a warning instead of an error.
func (v *TLSValidator) ValidateTLSEndpoint(ctx context.Context, endpoint string) (*ValidationResult, error) {
	result := &ValidationResult{
		Warnings: make([]string, 0),
		Errors:   make([]string, 0),
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("invalid URL: %v", err))
		return result, nil
	}

	if parsedURL.Scheme != "https" {
		result.Errors = append(result.Errors, "only HTTPS endpoints can be validated")
		return result, nil
	}

	host := parsedURL.Hostname()
	port := parsedURL.Port()
	if port == "" {
		port = "443"
	}
	address := net.JoinHostPort(host, port)

	dialer := &net.Dialer{Timeout: v.Timeout}
	tlsConfig := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true, // verification below is manual so we can report warnings, not just pass/fail
		RootCAs:            v.CustomCAs,
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to connect: %v", err))
		return result, nil
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		result.Errors = append(result.Errors, "no certificates found")
		return result, nil
	}

	cert := state.PeerCertificates[0]
	result.Certificate = cert
	result.CertChain = state.PeerCertificates
	result.Expiry = cert.NotAfter
	result.SANs = cert.DNSNames
	result.IsSelfSigned = v.isSelfSigned(cert)

	v.validateCertificate(result, cert)
	v.validateCertificateChain(result, state.PeerCertificates)
	v.validateExpiry(result, cert)
	v.validateHostname(result, cert, host)

	result.Valid = len(result.Errors) == 0
	return result, nil
}

func (v *TLSValidator) isSelfSigned(cert *x509.Certificate) bool {
	return cert.Issuer.String() == cert.Subject.String()
}

func (v *TLSValidator) validateCertificate(result *ValidationResult, cert *x509.Certificate) {
	now := time.Now()

	if now.Before(cert.NotBefore) {
		result.Errors = append(result.Errors, "certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		result.Errors = append(result.Errors, "certificate has expired")
	}

	if result.IsSelfSigned && !v.AllowSelfSigned {
		result.Errors = append(result.Errors, "self-signed certificates are not allowed")
	} else if result.IsSelfSigned {
		result.Warnings = append(result.Warnings, "certificate is self-signed")
	}

	if cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		result.Warnings = append(result.Warnings, "certificate lacks digital signature key usage")
	}
	if cert.KeyUsage&x509.KeyUsageKeyEncipherment == 0 && cert.KeyUsage&x509.KeyUsageKeyAgreement == 0 {
		result.Warnings = append(result.Warnings, "certificate lacks key encipherment or key agreement usage")
	}

	validExtKeyUsage := false
	for _, usage := range cert.ExtKeyUsage {
		if usage == x509.ExtKeyUsageServerAuth {
			validExtKeyUsage = true
			break
		}
	}
	if !validExtKeyUsage {
		result.Warnings = append(result.Warnings, "certificate lacks server authentication extended key usage")
	}
}

func (v *TLSValidator) validateCertificateChain(result *ValidationResult, chain []*x509.Certificate) {
	if len(chain) == 1 && !result.IsSelfSigned {
		result.Warnings = append(result.Warnings, "certificate chain contains only the leaf certificate (missing intermediate CAs)")
	}
	for i, cert := range chain {
		if cert.IsCA && i == 0 {
			result.Errors = append(result.Errors, "leaf certificate incorrectly marked as CA")
		}
		if !cert.IsCA && i > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("intermediate certificate at position %d not marked as CA", i))
		}
	}
}

func (v *TLSValidator) validateExpiry(result *ValidationResult, cert *x509.Certificate) {
	now := time.Now()
	if cert.NotAfter.Sub(now) < 7*24*time.Hour && cert.NotAfter.After(now) {
		result.Warnings = append(result.Warnings, "certificate expires within 7 days")
	} else if cert.NotAfter.Sub(now) < 30*24*time.Hour && cert.NotAfter.After(now) {
		result.Warnings = append(result.Warnings, "certificate expires within 30 days")
	}
}

func (v *TLSValidator) validateHostname(result *ValidationResult, cert *x509.Certificate, hostname string) {
	if err := cert.VerifyHostname(hostname); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("certificate not valid for hostname %s: %v", hostname, err))
		if len(cert.DNSNames) > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("certificate is valid for: %s", strings.Join(cert.DNSNames, ", ")))
		}
		if len(cert.IPAddresses) > 0 {
			ips := make([]string, len(cert.IPAddresses))
			for i, ip := range cert.IPAddresses {
				ips[i] = ip.String()
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("certificate is valid for IPs: %s", strings.Join(ips, ", ")))
		}
	}
}
