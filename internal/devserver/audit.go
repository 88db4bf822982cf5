package devserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
)

// auditEvent identifies a security-relevant action.
type auditEvent string

const (
	auditLoginSuccess     auditEvent = "login_success"
	auditLoginFailure     auditEvent = "login_failure"
	auditLoginRateLimited auditEvent = "login_rate_limited"
)

// auditLogger writes login events as structured log records.
type auditLogger struct {
	logger *slog.Logger
	clock  clock.Clock
}

func newAuditLogger(logger *slog.Logger, clk clock.Clock) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
		clock:  clk,
	}
}

func (al *auditLogger) log(ctx context.Context, level slog.Level, event auditEvent, remoteAddr string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", remoteAddr),
		slog.String("timestamp", al.clock.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(ctx, level, "audit", append(base, attrs...)...)
}

func (al *auditLogger) logEvent(ctx context.Context, event auditEvent, remoteAddr, username string) {
	al.log(ctx, slog.LevelInfo, event, remoteAddr, slog.String("username", username))
}

// logFailure records a rejected login at Warn.
func (al *auditLogger) logFailure(ctx context.Context, event auditEvent, remoteAddr, username string) {
	al.log(ctx, slog.LevelWarn, event, remoteAddr, slog.String("username", username))
}
