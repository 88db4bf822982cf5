package tlstrust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
)

// Connector opens WebSocket connections to game servers, enforcing pinned
// certificate fingerprints and running the first-trust flow when default
// CA verification fails.
type Connector struct {
	store            TrustStore
	prompt           TrustPrompt
	inspector        CertificateInspector
	roots            *x509.CertPool
	handshakeTimeout time.Duration
	clock            clock.Clock
	logger           *slog.Logger
}

// NewConnector returns a Connector backed by store and prompt.
func NewConnector(store TrustStore, prompt TrustPrompt, opts ...Option) *Connector {
	c := &Connector{
		store:            store,
		prompt:           prompt,
		handshakeTimeout: defaultHandshakeTimeout,
		clock:            clock.Real(),
		logger:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.inspector == nil {
		c.inspector = NewInspector(c.handshakeTimeout)
	}
	return c
}

// Connect returns an open WebSocket to rawURL. For wss URLs a stored pin is
// authoritative: a different certificate fails with ErrFingerprintMismatch
// and the user is not asked again.
func (c *Connector) Connect(ctx context.Context, serverID, rawURL string) (*websocket.Conn, error) {
	ep, err := parseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	log := c.logger.With("server_id", serverID, "url", rawURL)
	if !ep.secure {
		log.Debug("connecting without tls")
		return c.dial(ctx, ep, nil)
	}

	rec, ok, err := c.store.Get(serverID)
	if err != nil {
		return nil, fmt.Errorf("loading trust record: %w", err)
	}
	if ok {
		log.Debug("connecting with pinned certificate", "fingerprint", rec.FingerprintHex)
		return c.dialPinned(ctx, serverID, ep, rec.FingerprintHex)
	}

	conn, err := c.dial(ctx, ep, &tls.Config{
		ServerName: ep.host,
		RootCAs:    c.roots,
		MinVersion: tls.VersionTLS12,
	})
	if err == nil {
		if _, err := peerFingerprint(conn); err != nil {
			conn.Close()
			return nil, err
		}
		log.Debug("connected with default certificate verification")
		return conn, nil
	}
	if !IsVerificationError(err) {
		return nil, err
	}

	log.Info("certificate not verified by system roots, asking for trust", "error", err)
	rec, err = c.establishTrust(ctx, serverID, ep)
	if err != nil {
		return nil, err
	}
	return c.dialPinned(ctx, serverID, ep, rec.FingerprintHex)
}

// PrepareTrust runs the trust decision for rawURL without opening a
// WebSocket, so the caller can cancel before spending a handshake. It
// returns false when the user declines. Network failures return true and
// are left for the real connection attempt to report.
func (c *Connector) PrepareTrust(ctx context.Context, serverID, rawURL string) (bool, error) {
	ep, err := parseEndpoint(rawURL)
	if err != nil {
		return false, err
	}
	if !ep.secure {
		return true, nil
	}
	if _, ok, err := c.store.Get(serverID); err != nil {
		return false, fmt.Errorf("loading trust record: %w", err)
	} else if ok {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()
	dialer := &tls.Dialer{Config: &tls.Config{
		ServerName: ep.host,
		RootCAs:    c.roots,
		MinVersion: tls.VersionTLS12,
	}}
	conn, err := dialer.DialContext(ctx, "tcp", ep.addr)
	if err == nil {
		conn.Close()
		return true, nil
	}
	if !IsVerificationError(err) {
		c.logger.Debug("trust probe failed", "server_id", serverID, "error", err)
		return true, nil
	}

	if _, err := c.establishTrust(ctx, serverID, ep); err != nil {
		if errors.Is(err, ErrUserDeclined) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Repin replaces a server's pin after the user confirms the certificate it
// now presents. It is only ever invoked explicitly. It returns false when
// the user declines, leaving any existing record in place.
func (c *Connector) Repin(ctx context.Context, serverID, rawURL string) (bool, error) {
	ep, err := parseEndpoint(rawURL)
	if err != nil {
		return false, err
	}
	info, err := c.inspector.Inspect(ctx, ep.raw)
	if err != nil {
		return false, fmt.Errorf("inspecting certificate: %w", err)
	}
	old, ok, err := c.store.Get(serverID)
	if err != nil {
		return false, fmt.Errorf("loading trust record: %w", err)
	}
	if ok {
		if old.FingerprintHex == info.FingerprintHex {
			return true, nil
		}
		info.PinnedFingerprint = old.FingerprintHex
	}
	if !c.prompt.TrustCertificate(info) {
		return false, nil
	}
	if err := c.store.Set(serverID, c.recordFor(info)); err != nil {
		return false, fmt.Errorf("storing trust record: %w", err)
	}
	c.logger.Warn("certificate re-pinned",
		"server_id", serverID,
		"old_fingerprint", old.FingerprintHex,
		"fingerprint", info.FingerprintHex)
	return true, nil
}

func (c *Connector) establishTrust(ctx context.Context, serverID string, ep endpoint) (TrustRecord, error) {
	info, err := c.inspector.Inspect(ctx, ep.raw)
	if err != nil {
		c.logger.Warn("certificate inspection failed", "server_id", serverID, "error", err)
		return TrustRecord{}, fmt.Errorf("%w: %v", ErrUserDeclined, err)
	}
	if !c.prompt.TrustCertificate(info) {
		c.logger.Info("certificate declined", "server_id", serverID, "fingerprint", info.FingerprintHex)
		return TrustRecord{}, ErrUserDeclined
	}
	rec := c.recordFor(info)
	if err := c.store.Set(serverID, rec); err != nil {
		return TrustRecord{}, fmt.Errorf("storing trust record: %w", err)
	}
	c.logger.Info("certificate pinned", "server_id", serverID, "fingerprint", rec.FingerprintHex)
	return rec, nil
}

func (c *Connector) recordFor(info *CertificateInfo) TrustRecord {
	return TrustRecord{
		FingerprintHex: info.FingerprintHex,
		PEM:            info.PEM,
		Host:           info.Host,
		CommonName:     info.CommonName,
		CreatedAt:      c.clock.Now().UTC(),
	}
}

// dialPinned connects with chain verification disabled and accepts the
// peer only if its leaf fingerprint equals expected. The check runs inside
// the handshake and again on the established connection.
func (c *Connector) dialPinned(ctx context.Context, serverID string, ep endpoint, expected string) (*websocket.Conn, error) {
	expected = NormalizeFingerprint(expected)
	var presented string
	cfg := &tls.Config{
		ServerName:         ep.host,
		InsecureSkipVerify: true, //nolint:gosec // replaced by the pin check below
		MinVersion:         tls.VersionTLS12,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return ErrNoCertificate
			}
			presented = Fingerprint(cs.PeerCertificates[0])
			if presented != expected {
				return ErrFingerprintMismatch
			}
			return nil
		},
	}

	conn, err := c.dial(ctx, ep, cfg)
	if err != nil {
		if presented != "" && presented != expected {
			c.logMismatch(serverID, expected, presented)
			return nil, fmt.Errorf("%s: %w", serverID, ErrFingerprintMismatch)
		}
		return nil, err
	}
	got, err := peerFingerprint(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if got != expected {
		conn.Close()
		c.logMismatch(serverID, expected, got)
		return nil, fmt.Errorf("%s: %w", serverID, ErrFingerprintMismatch)
	}
	return conn, nil
}

func (c *Connector) logMismatch(serverID, expected, presented string) {
	c.logger.Error("pinned certificate changed, refusing connection",
		"server_id", serverID,
		"expected", DisplayFingerprint(expected),
		"presented", DisplayFingerprint(presented))
}

func (c *Connector) dial(ctx context.Context, ep endpoint, cfg *tls.Config) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  cfg,
		HandshakeTimeout: c.handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, ep.raw, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", ep.addr, err)
	}
	return conn, nil
}

func peerFingerprint(conn *websocket.Conn) (string, error) {
	tlsConn, ok := conn.NetConn().(*tls.Conn)
	if !ok {
		return "", ErrNoCertificate
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", ErrNoCertificate
	}
	return Fingerprint(certs[0]), nil
}
