//go:build !trace

// Package tracing marks report run phases in a runtime trace. Builds without
// the trace tag compile it to no-ops.
package tracing

import "context"

func Start() error { return nil }

func Stop() {}

func Phase(ctx context.Context, name string) (context.Context, func()) {
	return ctx, func() {}
}

func Region(ctx context.Context, name string) func() {
	return func() {}
}
