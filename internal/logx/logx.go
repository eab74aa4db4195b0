package logx

import (
	"context"
	"strings"

	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID string) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithTab annotates the logger with a tab id when available.
func WithTab(log pslog.Logger, tabID string) pslog.Logger {
	if tabID != "" {
		log = log.With("tab", tabID)
	}
	return log
}

// WithSessionTab annotates the context logger with session and tab
// identifiers, skipping fields already carried by the context.
func WithSessionTab(ctx context.Context, sessionID, tabID string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(string); !ok || current != sessionID {
			log = log.With("session", sessionID)
		}
	}
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(string); !ok || current != tabID {
			log = log.With("tab", tabID)
		}
	}
	return log
}

// ContextWithTabLogger attaches a tab-annotated logger and the tab marker to the context.
func ContextWithTabLogger(ctx context.Context, tabID string) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	if current, ok := ctx.Value(tabKey).(string); ok && current == tabID {
		return ctx
	}
	ctx = pslog.ContextWithLogger(ctx, pslog.Ctx(ctx).With("tab", tabID))
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithSessionLogger attaches a session-annotated logger and the session marker to the context.
func ContextWithSessionLogger(ctx context.Context, sessionID string) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	if current, ok := ctx.Value(sessionKey).(string); ok && current == sessionID {
		return ctx
	}
	ctx = pslog.ContextWithLogger(ctx, pslog.Ctx(ctx).With("session", sessionID))
	return context.WithValue(ctx, sessionKey, sessionID)
}

// LevelFromName maps a config level name to a pslog level.
// Unknown names report false.
func LevelFromName(name string) (pslog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return pslog.TraceLevel, true
	case "debug":
		return pslog.DebugLevel, true
	case "info", "":
		return pslog.InfoLevel, true
	case "warn", "warning":
		return pslog.WarnLevel, true
	case "error":
		return pslog.ErrorLevel, true
	default:
		return pslog.InfoLevel, false
	}
}
