package session

import (
	"log/slog"
	"time"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
)

const (
	// DefaultAuthorizeTimeout bounds the wait for authorize_success.
	DefaultAuthorizeTimeout = 15 * time.Second
	// DefaultJoinTimeout bounds how long a stopped connection task is awaited.
	DefaultJoinTimeout = 5 * time.Second
)

const (
	defaultReconnectDelay = 3 * time.Second
	minReconnectDelay     = time.Second
	defaultChatLanguage   = "Other"
	eventBuffer           = 64
	noticeBuffer          = 16
)

// OptionsSource supplies the client options pushed to a server after login.
type OptionsSource interface {
	ClientOptions(serverID string) (map[string]any, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock driving the authorize timeout and reconnect delays.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithAuthorizeTimeout overrides the 15 second authorize wait.
func WithAuthorizeTimeout(d time.Duration) Option {
	return func(c *Controller) { c.authorizeTimeout = d }
}

// WithJoinTimeout bounds how long a replaced connection is awaited.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Controller) { c.joinTimeout = d }
}

// WithClientOptions sets where client options come from.
func WithClientOptions(src OptionsSource) Option {
	return func(c *Controller) { c.options = src }
}
