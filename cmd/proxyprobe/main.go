package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/August26/proxyprobe/internal/analytics"
	"github.com/August26/proxyprobe/internal/checker"
	"github.com/August26/proxyprobe/internal/config"
	"github.com/August26/proxyprobe/internal/geo"
	"github.com/August26/proxyprobe/internal/logging"
	"github.com/August26/proxyprobe/internal/model"
	"github.com/August26/proxyprobe/internal/output"
	"github.com/August26/proxyprobe/internal/parser"
	"github.com/August26/proxyprobe/internal/retry"
	"github.com/August26/proxyprobe/internal/storage"
	"github.com/August26/proxyprobe/internal/storage/sqlite"
)

const (
	exitOK     = 0
	exitIO     = 1
	exitConfig = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}

	log := logging.NewLogger(stderr, cfg.Verbose, cfg.LogFormat)

	log.Info("starting proxyprobe",
		"target", cfg.Target,
		"timeout", cfg.Timeout,
		"concurrency", cfg.Concurrency,
		"retries", cfg.Retries,
	)

	proxies, err := parser.LoadFromFile(cfg.InputFile)
	if err != nil {
		if !errors.Is(err, parser.ErrMalformedProxy) {
			log.Error("failed to load proxies", "err", err, "path", cfg.InputFile)
			return exitIO
		}
		for _, lineErr := range multierr.Errors(err) {
			log.Warn("skipping malformed proxy", "err", lineErr)
		}
		if cfg.Strict {
			log.Error("malformed input in strict mode", "count", len(multierr.Errors(err)))
			return exitConfig
		}
	}

	log.Info("proxies loaded", "count", len(proxies))

	target := cfg.TargetURL
	prober := checker.NewProber(checker.TransportOptions{InsecureTLS: cfg.InsecureTLS})

	if cfg.GeoIPCity != "" || cfg.GeoIPASN != "" {
		resolver, err := geo.Open(cfg.GeoIPCity, cfg.GeoIPASN)
		if err != nil {
			log.Error("failed to open geoip databases", "err", err)
			return exitIO
		}
		defer resolver.Close()
		prober.Resolver = resolver
	}

	if cfg.DetectRealIP {
		realIP, err := checker.DirectOrigin(ctx, target, cfg.Timeout)
		if err != nil {
			log.Warn("real ip detection failed, anonymity will be less precise", "err", err)
		} else {
			prober.RealIP = realIP
			log.Info("real ip detected", "ip", realIP)
		}
	}

	coord := &checker.Coordinator{
		Prober: prober,
		Target: target,
		Logger: log,
		OnOutcome: func(o model.ProbeOutcome) {
			if o.Working() {
				log.Info("proxy working",
					slog.String("endpoint", o.Endpoint.String()),
					slog.Duration("latency", o.Latency),
					slog.String("ip", o.ObservedIP),
				)
			}
		},
	}
	if cfg.Retries > 1 {
		coord.Retry = retry.Policy{
			Attempts: cfg.Retries,
			Backoff:  retry.Exponential(200*time.Millisecond, 2*time.Second),
		}
	}

	report := coord.CheckAll(ctx, proxies, cfg.Timeout, cfg.Concurrency)
	stats := analytics.Compute(report)

	output.PrintWorking(stdout, report)
	if cfg.Table {
		output.PrintResultsTable(stdout, report.All)
		output.PrintSummary(stdout, stats)
	}

	code := exitOK

	if cfg.OutputFile != "" {
		if err := output.WriteFile(cfg.OutputFile, cfg.OutputFormat, report, stats); err != nil {
			log.Error("failed to write output file", "err", err, "path", cfg.OutputFile)
			code = exitIO
		} else {
			log.Info("results written",
				"path", cfg.OutputFile,
				"format", cfg.OutputFormat,
			)
		}
	}

	if cfg.DBPath != "" {
		stored, err := saveReport(ctx, cfg.DBPath, report)
		if err != nil {
			log.Error("failed to store report", "err", err, "path", cfg.DBPath)
			code = exitIO
		} else {
			log.Info("report stored",
				"path", cfg.DBPath,
				"run_id", stored.ID,
				"total", stored.Total,
				"working", stored.Working,
			)
		}
	}

	return code
}

// saveReport stores the run and reads its summary back.
func saveReport(ctx context.Context, path string, report model.ProbeReport) (summary *storage.RunSummary, err error) {
	// The batch may have been cut short by a signal; the archive write
	// should still go through.
	ctx = context.WithoutCancel(ctx)

	store, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	if err := store.SaveReport(ctx, report); err != nil {
		return nil, err
	}
	return store.GetRun(ctx, report.RunID)
}
