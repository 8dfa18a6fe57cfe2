// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// insights-agent reports the archives an application has loaded to a
// collection service.
//
// At startup it sends a CONNECT report: the application's basic facts
// and the fingerprints of every archive on the configured classpath.
// It then watches the configured deployment directories, and
// optionally reads archive locations from stdin, and batches every
// newly seen archive into periodic UPDATE reports. Reports go to the
// HTTPS upload service first and fall back to NATS, Redis and finally
// a local upload directory.
//
// Configuration comes from --config or INSIGHTS_AGENT_CONFIG; see
// lib/config for the file format.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/runtime-insights/insights-agent/lib/archive"
	"github.com/runtime-insights/insights-agent/lib/basic"
	"github.com/runtime-insights/insights-agent/lib/clock"
	"github.com/runtime-insights/insights-agent/lib/config"
	"github.com/runtime-insights/insights-agent/lib/controller"
	"github.com/runtime-insights/insights-agent/lib/delivery"
	"github.com/runtime-insights/insights-agent/lib/discovery"
	"github.com/runtime-insights/insights-agent/lib/fingerprint"
	"github.com/runtime-insights/insights-agent/lib/hashstream"
	"github.com/runtime-insights/insights-agent/lib/metrics"
	"github.com/runtime-insights/insights-agent/lib/nested"
	"github.com/runtime-insights/insights-agent/lib/process"
	"github.com/runtime-insights/insights-agent/lib/report"
	"github.com/runtime-insights/insights-agent/lib/tlsprovider"
	"github.com/runtime-insights/insights-agent/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		checkOnly   bool
		noticeStdin bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("insights-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the agent config file (default: $"+config.EnvConfigPath+")")
	flagSet.BoolVar(&checkOnly, "check", false, "validate the configuration and credentials, then exit")
	flagSet.BoolVar(&noticeStdin, "notice-stdin", false, "read loaded archive locations from stdin, one per line")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("insights-agent %s\n", version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Identification.OptOut {
		// Credentials and identification are not required to opt out.
		return controller.New(controller.Config{OptOut: true}, controller.Dependencies{Logger: logger}).Generate(ctx)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if checkOnly {
		return check(cfg, logger)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	return runAgent(ctx, cfg, noticeStdin, os.Stdin, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// check verifies what can be verified without sending anything.
func check(cfg *config.Config, logger *slog.Logger) error {
	if !cfg.Upload.Disabled && cfg.Upload.Token == "" {
		provider := tlsprovider.Provider{CertFile: cfg.Upload.CertFile, KeyFile: cfg.Upload.KeyFile, CAFile: cfg.Upload.CAFile}
		if err := provider.Check(); err != nil {
			return err
		}
	}
	if cfg.Reports.Validate {
		if _, err := report.NewValidator(); err != nil {
			return err
		}
	}
	logger.Info("configuration valid",
		"name", cfg.Identification.Name,
		"environment", cfg.Environment,
	)
	return nil
}

// runAgent wires the pipeline and blocks until a signal or a fatal
// report error.
func runAgent(ctx context.Context, cfg *config.Config, noticeStdin bool, stdin io.Reader, logger *slog.Logger) error {
	clk := clock.Real()

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics.Listen != "" {
		registry := prometheus.NewRegistry()
		recorder = metrics.NewProm("insights_agent", registry)
		stopMetrics := serveMetrics(cfg.Metrics.Listen, registry, logger)
		defer stopMetrics()
	}

	filtering, err := basic.ParseFiltering(cfg.Reports.Filtering)
	if err != nil {
		return err
	}
	var validator *report.Validator
	if cfg.Reports.Validate {
		if validator, err = report.NewValidator(); err != nil {
			return err
		}
	}

	resolver := archive.NewResolver(archive.OSFS{}, cfg.Discovery.MaxNestedSize)
	fingerprinter, err := newFingerprinter(cfg, resolver, logger)
	if err != nil {
		return err
	}
	walker := nested.New(resolver, fingerprinter, nested.Config{}, logger)

	queue := discovery.NewQueue(cfg.Discovery.QueueCapacity)
	noticer := discovery.NewNoticer(fingerprinter, walker, discovery.NewDedupState(), queue, recorder, discovery.Config{
		ExpandContainers: cfg.Discovery.ExpandContainers,
		ScratchDir:       cfg.Discovery.ScratchDir,
	}, logger)

	transports, closeTransports, err := buildTransports(cfg, clk, logger)
	if err != nil {
		return err
	}
	defer closeTransports()
	failover := delivery.NewFailover(logger, recorder, transports...)

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	agent := controller.New(controller.Config{
		ConnectPeriod: cfg.Schedule.ConnectPeriod,
		UpdatePeriod:  cfg.Schedule.UpdatePeriod,
		Classpath:     cfg.Discovery.Classpath,
		WorkDir:       workDir,
	}, controller.Dependencies{
		Clock:      clk,
		Logger:     logger,
		Recorder:   recorder,
		Delivery:   failover,
		Facts:      basic.NewSource(cfg.Identification.Name, clk, filtering),
		Identifier: fingerprinter,
		Queue:      queue,
		Reports:    report.Options{Logger: logger, Validator: validator},
	})

	feedContext, stopFeeds := context.WithCancel(ctx)
	defer stopFeeds()
	if len(cfg.Discovery.WatchDirs) > 0 {
		watcher := discovery.NewWatcher(cfg.Discovery.WatchDirs, noticer, clk, cfg.Discovery.Settle, logger)
		go func() {
			if err := watcher.Run(feedContext); err != nil {
				logger.Error("directory watcher stopped", "error", err)
			}
		}()
	}
	if noticeStdin {
		go readNotices(feedContext, stdin, noticer, logger)
	}

	if err := agent.Generate(ctx); err != nil {
		return err
	}
	logger.Info("insights agent running",
		"name", cfg.Identification.Name,
		"version", version.Info(),
		"transports", failover.Names(),
		"watch_dirs", cfg.Discovery.WatchDirs,
		"connect_period", cfg.Schedule.ConnectPeriod,
		"update_period", cfg.Schedule.UpdatePeriod,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		agent.Shutdown()
		<-agent.Done()
		return nil
	case <-agent.Done():
		if err := agent.Err(); err != nil {
			return err
		}
		return nil
	}
}

func newFingerprinter(cfg *config.Config, resolver *archive.Resolver, logger *slog.Logger) (*fingerprint.Fingerprinter, error) {
	algorithms := make([]hashstream.Algorithm, 0, len(cfg.Discovery.Algorithms))
	for _, name := range cfg.Discovery.Algorithms {
		algorithm, err := hashstream.ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		algorithms = append(algorithms, algorithm)
	}

	selfPath := cfg.Discovery.SelfPath
	if selfPath == "" {
		executable, err := version.Executable()
		if err != nil {
			logger.Warn("cannot exclude own executable from reports", "error", err)
		} else {
			selfPath = executable
		}
	}

	return fingerprint.New(resolver, fingerprint.Config{
		Algorithms: algorithms,
		SkipTemp:   cfg.Discovery.SkipTemp,
		TempDir:    cfg.Discovery.TempDir,
		Ignore:     cfg.Discovery.Ignore,
		SelfPath:   selfPath,
	}, logger), nil
}

// readNotices feeds one archive location per line to notifier until
// input ends or ctx is cancelled.
func readNotices(ctx context.Context, input io.Reader, notifier discovery.Notifier, logger *slog.Logger) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := scanner.Text(); line != "" {
			notifier.Notice(line)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading archive notices from stdin", "error", err)
	}
}

// serveMetrics starts the Prometheus endpoint and returns its stop
// function. A listener failure is logged, not fatal.
func serveMetrics(listen string, registry *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint stopped", "listen", listen, "error", err)
		}
	}()
	return func() {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownContext); err != nil {
			logger.Debug("metrics endpoint shutdown", "error", err)
		}
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `insights-agent reports the archives an application has loaded.

Sends a CONNECT report at startup with the application's facts and
classpath archives, then UPDATE reports for every archive noticed in
the watched deployment directories (or on stdin with --notice-stdin).

Opting out (identification.opt_out: true) exits cleanly without
reporting anything.

Usage:
  insights-agent [flags]

Examples:
  # Run with a config file
  insights-agent --config /etc/insights-agent/agent.yaml

  # Validate the configuration and certificate files
  INSIGHTS_AGENT_CONFIG=/etc/insights-agent/agent.yaml insights-agent --check

  # Report archives named by another process
  find /opt/app/lib -name '*.jar' | insights-agent --config agent.yaml --notice-stdin

Exit status: 0 on success or opt-out, 2 for configuration errors,
1 otherwise. Errors carry a stable code of the form I4ASRnnnn.

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
