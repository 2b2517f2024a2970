// Command usnwatcher streams NTFS change-journal events for one volume
// as newline-delimited JSON on stdout, and optionally fans the same
// stream out to named-pipe subscribers and a Prometheus /metrics
// endpoint.
//
// Grounded on the teacher's cmd/dittofs/main.go: parse flags, configure
// the logger, construct dependencies, run the main loop in a background
// goroutine, select on an OS signal channel versus a completion channel,
// cancel and wait on shutdown with a bounded timeout, set the exit code.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/marmos91/usnwatcher/internal/cursor"
	"github.com/marmos91/usnwatcher/internal/errs"
	"github.com/marmos91/usnwatcher/internal/filter"
	"github.com/marmos91/usnwatcher/internal/logger"
	"github.com/marmos91/usnwatcher/internal/orchestrator"
	"github.com/marmos91/usnwatcher/internal/pathresolver"
	"github.com/marmos91/usnwatcher/internal/pipe"
	"github.com/marmos91/usnwatcher/internal/usnrecord"
	"github.com/marmos91/usnwatcher/pkg/config"
	"github.com/marmos91/usnwatcher/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "", "path to a YAML or TOML config file")
	format := pflag.String("format", "", "stdout rendering: table or json")
	pollMs := pflag.Int("poll-ms", 0, "milliseconds to sleep after an empty journal read")
	filterExpr := pflag.String("filter", "", "filter expression applied before emission")
	noPopulate := pflag.Bool("no-populate", false, "skip the background MFT enumeration")
	verbose := pflag.Bool("verbose", false, "raise the log level to DEBUG")
	pipeFlag := pflag.Bool("pipe", false, "enable the named-pipe broadcaster")
	pipeName := pflag.String("pipe-name", "", "override the per-volume named-pipe path")
	filterLog := pflag.String("filter-log", "", "file to record events the filter dropped")
	metricsEnabled := pflag.Bool("metrics", false, "enable the /metrics Prometheus endpoint")
	metricsAddr := pflag.String("metrics-addr", "", "address for the /metrics endpoint, e.g. :9090")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: usnwatcher [flags] <volume-letter>")
		return 1
	}
	volumeArg := pflag.Arg(0)
	if len(volumeArg) != 1 {
		fmt.Fprintf(os.Stderr, "usnwatcher: %q is not a single drive letter\n", volumeArg)
		return 1
	}
	volumeLetter := volumeArg[0]

	overrides := map[string]any{"volume": string(volumeLetter)}
	applyFlagOverride(overrides, "format", *format, pflag.Lookup("format"))
	applyIntOverride(overrides, "poll_interval", *pollMs, pflag.Lookup("poll-ms"))
	applyFlagOverride(overrides, "filter", *filterExpr, pflag.Lookup("filter"))
	if pflag.Lookup("no-populate").Changed {
		overrides["populate"] = !*noPopulate
	}
	if pflag.Lookup("verbose").Changed {
		overrides["verbose"] = *verbose
	}
	if pflag.Lookup("pipe").Changed {
		overrides["pipe"] = *pipeFlag
	}
	applyFlagOverride(overrides, "pipe_name", *pipeName, pflag.Lookup("pipe-name"))
	applyFlagOverride(overrides, "filter_log", *filterLog, pflag.Lookup("filter-log"))
	if pflag.Lookup("metrics").Changed {
		overrides["metrics.enabled"] = *metricsEnabled
	}
	applyFlagOverride(overrides, "metrics.listen_addr", *metricsAddr, pflag.Lookup("metrics-addr"))

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usnwatcher: configuration error: %v\n", err)
		return 1
	}

	logOutput := os.Stderr
	if cfg.Logging.Output == "stdout" {
		logOutput = os.Stdout
	}
	logger.SetOutput(logOutput)
	logger.SetLevel(cfg.Logging.Level)
	logger.Debug("usnwatcher: log level resolved to %s", logger.GetLevel())

	if cfg.FilterLog != "" {
		f, err := os.OpenFile(cfg.FilterLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "usnwatcher: opening filter log %s: %v\n", cfg.FilterLog, err)
			return 1
		}
		defer f.Close()
		logger.SetFilterLog(f)
	}

	predicate, err := filter.Parse(cfg.Filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usnwatcher: invalid filter expression: %v\n", err)
		return 1
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	daemonMetrics := metrics.NewDaemon(metrics.GetRegistry())

	deps, err := buildPlatformDeps(volumeLetter)
	if err != nil {
		if code, ok := errs.CodeOf(err); ok && code == errs.ErrPermissionDenied {
			fmt.Fprintf(os.Stderr, "usnwatcher: access denied opening volume %c: administrator rights are required to read the USN journal\n", volumeLetter)
			return 1
		}
		fmt.Fprintf(os.Stderr, "usnwatcher: %v\n", err)
		return 1
	}
	defer deps.handle.Release()
	defer deps.reader.Close()

	cursorStore := cursor.New()
	startup, err := orchestrator.Startup(deps.reader, cursorStore, string(volumeLetter))
	if err != nil {
		fmt.Fprintf(os.Stderr, "usnwatcher: starting journal reader: %v\n", err)
		return 1
	}

	resolver := pathresolver.New()
	resolver.TryLoadCache(volumeLetter)

	var broadcaster *pipe.Broadcaster
	if cfg.Pipe {
		broadcaster, err = pipe.Listen(volumeLetter, cfg.PipeName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "usnwatcher: listening on named pipe: %v\n", err)
			return 1
		}
	}

	var metricsServer *metricsHTTPServer
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.ListenAddr, daemonMetrics)
		defer metricsServer.Shutdown()
	}

	emit := stdoutEmitter(cfg.Format)

	opts := orchestrator.Options{
		VolumeLetter:   volumeLetter,
		ReasonMask:     usnrecord.AllReasonsMask,
		PollInterval:   cfg.PollInterval,
		DebounceWindow: cfg.DebounceWindow,
		Populate:       cfg.Populate,
		Filter:         predicate,
		Emit:           emit,
		Broadcaster:    broadcaster,
		Metrics:        daemonMetrics,
		CursorStore:    cursorStore,
		Resolver:       resolver,
		EntrySource:    deps.entrySource,
	}

	orch := orchestrator.New(opts, deps.reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.BackgroundPopulate(ctx)
	if broadcaster != nil {
		go func() {
			if err := broadcaster.Serve(ctx.Done()); err != nil {
				logger.Warn("usnwatcher: named pipe listener stopped: %v", err)
			}
		}()
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- orch.Run(ctx, startup)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("usnwatcher: watching volume %c:, press Ctrl+C to stop", volumeLetter)

	select {
	case <-sigCh:
		logger.Info("usnwatcher: shutdown signal received")
		cancel()
		<-runDone
	case err := <-runDone:
		if err != nil {
			logger.Error("usnwatcher: main loop exited with error: %v", err)
			return 1
		}
	}

	return 0
}

// applyFlagOverride records value into overrides under key only when the
// pflag was explicitly set, so an unset flag never masks an env var or
// config file value with its zero default.
func applyFlagOverride(overrides map[string]any, key, value string, flag *pflag.Flag) {
	if flag != nil && flag.Changed {
		overrides[key] = value
	}
}

func applyIntOverride(overrides map[string]any, key string, milliseconds int, flag *pflag.Flag) {
	if flag != nil && flag.Changed {
		overrides[key] = durationFromMillis(milliseconds)
	}
}
