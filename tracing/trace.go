//go:build trace

package tracing

import (
	"context"
	"os"
	"runtime/trace"
)

var traceFile *os.File

// Start writes a runtime trace to $SCANAUDIT_TRACE_FILE (scanaudit.trace by
// default) until Stop is called.
func Start() error {
	path := os.Getenv("SCANAUDIT_TRACE_FILE")
	if path == "" {
		path = "scanaudit.trace"
	}
	var err error
	traceFile, err = os.Create(path)
	if err != nil {
		return err
	}
	return trace.Start(traceFile)
}

func Stop() {
	trace.Stop()
	if traceFile != nil {
		traceFile.Close()
	}
}

// Phase runs one stage of a report run as a trace task.
func Phase(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, "scanaudit."+name)
	return ctx, task.End
}

func Region(ctx context.Context, name string) func() {
	return trace.StartRegion(ctx, name).End
}
