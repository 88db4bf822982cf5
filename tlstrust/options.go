package tlstrust

import (
	"crypto/x509"
	"log/slog"
	"time"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
)

const defaultHandshakeTimeout = 10 * time.Second

// Option configures a Connector.
type Option func(*Connector)

// WithRootCAs sets the pool used for default CA verification. A nil pool
// means the system roots.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *Connector) { c.roots = pool }
}

// WithLogger sets the structured logger for trust decisions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithHandshakeTimeout bounds the TLS and WebSocket opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Connector) { c.handshakeTimeout = d }
}

// WithInspector replaces the certificate inspector used for first trust.
func WithInspector(i CertificateInspector) Option {
	return func(c *Connector) { c.inspector = i }
}

// WithClock sets the clock used to stamp new trust records.
func WithClock(clk clock.Clock) Option {
	return func(c *Connector) { c.clock = clk }
}
