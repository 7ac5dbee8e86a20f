package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scanaudit/aggregate"
	"scanaudit/config"
	"scanaudit/logger"
	"scanaudit/output"
	"scanaudit/report"
	"scanaudit/source"
	"scanaudit/systeminfo"
	"scanaudit/tracing"
)

func main() {
	os.Exit(execute())
}

// execute runs the tool and returns the process exit code. Deferred cleanup
// runs before main exits.
func execute() int {
	if err := tracing.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start trace: %v\n", err)
	} else {
		defer tracing.Stop()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	logger.Init(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	return runReport(ctx, cfg)
}

// runReport runs one report and logs the outcome.
func runReport(ctx context.Context, cfg *config.Config) int {
	if err := run(ctx, cfg); err != nil {
		logger.Errorf("Report failed: %v", err)
		return 1
	}
	logger.Info("Report completed successfully.")
	return 0
}

// run loads every input, builds the report and sends it to the configured
// sinks.
func run(ctx context.Context, cfg *config.Config) error {
	startTime := time.Now()
	metrics := output.Metrics{
		StartTime:        startTime.Format(time.RFC3339),
		SourcesRequested: len(cfg.Inputs),
	}

	host := systeminfo.GetHostInfo(cfg)

	loadCtx, endLoad := tracing.Phase(ctx, "load")
	batch, err := source.Load(loadCtx, cfg)
	endLoad()
	if err != nil {
		return fmt.Errorf("load audit logs: %w", err)
	}
	metrics.SourcesLoaded = len(batch.Sources)
	metrics.RowsRead = len(batch.Records) - 1

	_, endBuild := tracing.Phase(ctx, "aggregate")
	rep := report.Build(batch.Rows(), report.Options{
		Classifier:      aggregate.NewClassifier(cfg.BotMarkers),
		IncludeActivity: cfg.IncludeActivity,
		Host:            host,
		Sources:         batch.Sources,
	})
	endBuild()
	if rep.Empty {
		logger.Warn("No audit rows found; writing an empty report.")
	}

	_, endWrite := tracing.Phase(ctx, "output")
	defer endWrite()

	writer, err := output.New(cfg, &metrics)
	if err != nil {
		return fmt.Errorf("initialize output: %w", err)
	}
	if err := writer.WriteReport(rep); err != nil {
		if cerr := writer.Close(); cerr != nil {
			return fmt.Errorf("write report: %w (close output: %v)", err, cerr)
		}
		return fmt.Errorf("write report: %w", err)
	}
	metrics.UsersReported = len(rep.Users)
	metrics.EndTime = time.Now().Format(time.RFC3339)
	writer.SetMetrics(metrics)
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if writer.Name() != output.StdoutName {
		logger.Infof("Report written to %s", writer.Name())
	}

	if cfg.MetricsFile != "" {
		if err := output.WriteMetricsFile(cfg.MetricsFile, rep); err != nil {
			logger.Warnf("Failed to write metrics file %s: %v", cfg.MetricsFile, err)
		}
	}
	if err := output.PublishSummary(cfg, rep); err != nil {
		logger.Warnf("Failed to publish report summary: %v", err)
	}
	return nil
}

func handleSignals(cancelFunc context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	handleSignalEvent(cancelFunc, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")
	cancelFunc()
}
