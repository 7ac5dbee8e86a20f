//go:build !trace

package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStubDoesNotWriteTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.trace")
	t.Setenv("SCANAUDIT_TRACE_FILE", path)
	if err := Start(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	ctx, end := Phase(context.Background(), "load")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	Region(ctx, "merge")()
	end()
	Stop()
	if _, err := os.Stat(path); err == nil {
		t.Fatal("expected no trace file without the trace build tag")
	}
}
