// Package logging provides the structured logger shared across the
// fingerprinting pipeline. It wraps log/slog the way the teacher's
// fileformat package did (slog.Any("error", err) on go-xerrors-wrapped
// causes), but gives every package a single place to fetch a logger
// instead of reaching for a bare global.
package logging

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey struct{}

var base *slog.Logger

func init() {
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Configure replaces the package-level base logger. Called once from
// main before any pipeline code runs.
func Configure(verbose bool, json bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	base = slog.New(handler)
}

// WithContext attaches a logger to ctx, e.g. to carry a request/session id
// across a call chain.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger attached to ctx, or the package default.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return base
}

// Default returns the package-level logger directly, for call sites
// without a context.Context handy.
func Default() *slog.Logger {
	return base
}
