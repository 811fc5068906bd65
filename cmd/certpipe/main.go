package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seccerts/certpipe/internal/app"
	"github.com/seccerts/certpipe/internal/config"
	"github.com/seccerts/certpipe/internal/telemetry"
)

func main() {
	// Setup Structured Logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// load config
	cfg := config.Load()

	// Initialize Tracing
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Initialize Application
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// Root Context with cancellation on Interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("certpipe starting", "framework", cfg.Framework, "stage", cfg.Stage)

	report, err := application.Run(ctx)
	if err != nil {
		slog.Error("Build run failed", "error", err)
		os.Exit(1)
	}

	// Per-record failures are isolated; the run still exits zero with a
	// summary so batch schedulers don't retry the whole build.
	fmt.Printf("run %s: fetched=%d parsed=%d enriched=%d failed=%d conflicts=%d\n",
		report.RunID, report.Fetched, report.Parsed, report.Enriched,
		report.Failed(), report.Conflicts)
	for _, f := range report.Failures {
		fmt.Printf("  [%s] %s %s: %s\n", f.Stage, f.CertID, f.URL, f.Err)
	}
	if len(report.Unmatched) > 0 {
		fmt.Printf("unmatched (no CPE candidates): %v\n", report.Unmatched)
	}
	if len(report.Degraded) > 0 {
		fmt.Printf("degraded corpora: %v\n", report.Degraded)
	}
}
