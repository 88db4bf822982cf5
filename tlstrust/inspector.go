package tlstrust

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"
)

// CertificateInspector fetches the certificate a server presents without
// trusting it.
type CertificateInspector interface {
	Inspect(ctx context.Context, rawURL string) (*CertificateInfo, error)
}

// Inspector probes a server with certificate verification disabled. The
// result may only be shown to a human or compared against a pin; it never
// establishes trust by itself.
type Inspector struct {
	timeout time.Duration
}

// NewInspector returns an Inspector whose probe gives up after timeout.
// A zero timeout uses ten seconds.
func NewInspector(timeout time.Duration) *Inspector {
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	return &Inspector{timeout: timeout}
}

// Inspect dials rawURL's host, completes a TLS handshake and describes the
// leaf certificate. The probe connection is closed before returning.
func (i *Inspector) Inspect(ctx context.Context, rawURL string) (*CertificateInfo, error) {
	ep, err := parseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	if !ep.secure {
		return nil, fmt.Errorf("inspecting %s: %w", rawURL, ErrUnsupportedScheme)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	dialer := &tls.Dialer{Config: &tls.Config{
		ServerName:         ep.host,
		InsecureSkipVerify: true, //nolint:gosec // inspection only, never trust
	}}
	conn, err := dialer.DialContext(ctx, "tcp", ep.addr)
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", ep.addr, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, ErrNoCertificate
	}
	return NewCertificateInfo(ep.host, state.PeerCertificates[0]), nil
}
