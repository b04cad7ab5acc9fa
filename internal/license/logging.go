package license

import (
	"context"
	"log/slog"

	"licensekit/internal/infrastructure"
)

// logInfo logs a structured license action at INFO level, carrying the
// trace id when the context has one.
func (m *Manager) logInfo(ctx context.Context, action, message string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelInfo, action, message, attrs...)
}

func (m *Manager) logWarn(ctx context.Context, action, message string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelWarn, action, message, attrs...)
}

func (m *Manager) logError(ctx context.Context, action, message string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelError, action, message, attrs...)
}

func (m *Manager) logAction(ctx context.Context, level slog.Level, action, message string, attrs ...slog.Attr) {
	if m.logger == nil {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all, slog.String("action", action))
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		all = append(all, slog.String("trace_id", traceID))
	}
	all = append(all, attrs...)
	m.logger.LogAttrs(ctx, level, message, all...)
}

// maskLicenseKey returns a display-safe form of a license key. Keys at or
// under eight characters are fully masked.
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
