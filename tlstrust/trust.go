// Package tlstrust decides how a secure WebSocket to a game server is
// established: default CA trust, a pinned certificate fingerprint, or a
// trust-on-first-use decision made by the user.
package tlstrust

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

var (
	// ErrUserDeclined is returned when no trust could be established for a
	// server certificate, either because the user refused it or because it
	// could not be inspected.
	ErrUserDeclined = errors.New("certificate not trusted")
	// ErrFingerprintMismatch is returned when a server presents a certificate
	// whose fingerprint differs from the pinned one.
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")
	// ErrNoCertificate is returned when a TLS peer presented no certificate.
	ErrNoCertificate = errors.New("server presented no certificate")
	// ErrUnsupportedScheme is returned for URLs other than ws:// and wss://.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// TrustRecord is the persisted pin for one server.
type TrustRecord struct {
	FingerprintHex string    `json:"fingerprint_hex"`
	PEM            string    `json:"pem"`
	Host           string    `json:"host"`
	CommonName     string    `json:"common_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrustStore persists one TrustRecord per server id.
type TrustStore interface {
	Get(serverID string) (TrustRecord, bool, error)
	Set(serverID string, rec TrustRecord) error
	Clear(serverID string) error
}

// TrustPrompt asks the user whether to trust a certificate. It is only
// called on the connecting path, never from a receive loop.
type TrustPrompt interface {
	TrustCertificate(info *CertificateInfo) bool
}

// PromptFunc adapts a function to TrustPrompt.
type PromptFunc func(info *CertificateInfo) bool

func (f PromptFunc) TrustCertificate(info *CertificateInfo) bool { return f(info) }

// IsVerificationError reports whether err came from certificate chain or
// hostname verification, as opposed to a network failure.
func IsVerificationError(err error) bool {
	if err == nil {
		return false
	}
	var cve *tls.CertificateVerificationError
	var unknown x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &cve) ||
		errors.As(err, &unknown) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}

type endpoint struct {
	raw    string
	host   string
	addr   string
	secure bool
}

func parseEndpoint(rawURL string) (endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return endpoint{}, fmt.Errorf("parsing server url: %w", err)
	}
	var port string
	ep := endpoint{raw: rawURL, host: u.Hostname()}
	switch u.Scheme {
	case "wss":
		ep.secure = true
		port = "443"
	case "ws":
		port = "80"
	default:
		return endpoint{}, fmt.Errorf("%q: %w", u.Scheme, ErrUnsupportedScheme)
	}
	if ep.host == "" {
		return endpoint{}, fmt.Errorf("server url %q has no host", rawURL)
	}
	if p := u.Port(); p != "" {
		port = p
	}
	ep.addr = net.JoinHostPort(ep.host, port)
	return ep, nil
}
