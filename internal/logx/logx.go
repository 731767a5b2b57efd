package logx

import (
	"context"

	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	windowKey contextKey = iota
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithWindow annotates the logger with the window id if present.
func WithWindow(log pslog.Logger, windowID schema.WindowID) pslog.Logger {
	if windowID != "" {
		log = log.With("window", windowID)
	}
	return log
}

// WithResource annotates the logger with the resource and its kind.
func WithResource(log pslog.Logger, resource schema.Resource) pslog.Logger {
	if resource == "" {
		return log
	}
	kind := "local"
	switch {
	case resource == schema.ConnectDialogResource:
		kind = "dialog"
	case resource.IsRemote():
		kind = "remote"
	}
	return log.With("resource", resource, "kind", kind)
}

// WithWindowState annotates the logger with window id and resource.
func WithWindowState(ctx context.Context, windowID schema.WindowID, resource schema.Resource) pslog.Logger {
	log := pslog.Ctx(ctx)
	if current, ok := ctx.Value(windowKey).(schema.WindowID); ok && current == windowID {
		return log
	}
	return WithResource(WithWindow(log, windowID), resource)
}

// ContextWithWindow stores the window marker on the context for log de-duplication.
func ContextWithWindow(ctx context.Context, windowID schema.WindowID) context.Context {
	if ctx == nil || windowID == "" {
		return ctx
	}
	return context.WithValue(ctx, windowKey, windowID)
}

// ContextWithWindowLogger attaches an annotated logger and the window marker to the context.
func ContextWithWindowLogger(ctx context.Context, log pslog.Logger, windowID schema.WindowID, resource schema.Resource) context.Context {
	ctx = pslog.ContextWithLogger(ctx, WithResource(WithWindow(log, windowID), resource))
	return ContextWithWindow(ctx, windowID)
}
