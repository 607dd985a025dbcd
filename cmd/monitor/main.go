package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/logging"
	"github.com/smukkama/home-monitor/internal/monitor"
	"github.com/smukkama/home-monitor/internal/state"
	"github.com/smukkama/home-monitor/pkg/config"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", true, "run a single cycle and exit")
	loop := flag.Bool("loop", false, "run a cycle every poll interval until interrupted")
	readings := flag.String("readings", "", "read a JSON-lines reading batch from a file, or - for stdin, instead of the API")
	dryRun := flag.Bool("dry-run", false, "evaluate and log notifications without sending them or saving state")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "home-monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, options{loop: *loop || !*once, readings: *readings, dryRun: *dryRun}); err != nil {
		logger.Error("Monitor failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

type options struct {
	loop     bool
	readings string
	dryRun   bool
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts options) error {
	inv, err := inventory.Load(cfg.Monitor.InventoryPath)
	if err != nil {
		return err
	}
	if cfg.Ntfy.Topic == "" {
		cfg.Ntfy.Topic = inv.NtfyTopic
	}
	logger.Info("Inventory loaded",
		zap.String("path", cfg.Monitor.InventoryPath),
		zap.Int("devices", len(inv.Devices())),
		zap.Int("misconfigured", len(inv.Problems())),
	)

	policy, err := buildPolicy(cfg.Monitor)
	if err != nil {
		return err
	}

	var closers closeList
	defer closers.closeAll(logger)

	source := buildSource(cfg, inv, opts.readings, logger)

	backend, err := buildBackend(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}

	runnerOpts := []monitor.RunnerOption{}
	if backend.eventLog != nil {
		runnerOpts = append(runnerOpts, monitor.WithEventLog(backend.eventLog))
	}
	if exporter := buildExporter(cfg, inv); exporter != nil {
		runnerOpts = append(runnerOpts, monitor.WithExporter(exporter))
	}

	dispatcher, err := buildDispatcher(cfg, logger, &closers, opts.dryRun)
	if err != nil {
		return err
	}
	if opts.dryRun {
		runnerOpts = append(runnerOpts, monitor.WithDryRun())
	}

	runner := monitor.NewRunner(monitor.Config{Inventory: inv, Policy: policy}, source, backend.store, dispatcher, logger, runnerOpts...)

	if opts.loop {
		logger.Info("Monitor running", zap.Duration("poll_interval", cfg.Monitor.PollInterval))
		err := runner.Loop(ctx, backend.locker, cfg.Monitor.PollInterval, time.Now)
		if errors.Is(err, context.Canceled) {
			logger.Info("Shutting down gracefully")
			return nil
		}
		return err
	}

	return runOnce(ctx, runner, backend.locker, time.Now())
}

// runOnce runs a single locked cycle. Problems inside the cycle are only
// reported; a held lock or an unsaved state fail the run.
func runOnce(ctx context.Context, runner *monitor.Runner, locker monitor.Locker, now time.Time) error {
	_, err := runner.RunLocked(ctx, locker, now)
	if errors.Is(err, state.ErrLocked) {
		return fmt.Errorf("another cycle is running: %w", err)
	}
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}
	return nil
}

func buildPolicy(m config.MonitorConfig) (monitor.Policy, error) {
	sched, err := m.DigestSchedule()
	if err != nil {
		return monitor.Policy{}, err
	}
	return monitor.Policy{
		Alerts: alarming.Policy{
			ReminderInterval: m.ReminderInterval,
			Recovery: alarming.RecoveryPolicy{
				Notify:      m.RecoveryNotify,
				AfterCycles: m.RecoveryAfterCycles,
			},
		},
		FreshnessWindow: m.Freshness(),
		Digest:          sched,
	}, nil
}

type closeList []func() error

func (c *closeList) add(f func() error) { *c = append(*c, f) }

func (c closeList) closeAll(logger *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
}
