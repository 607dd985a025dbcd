package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/notification"
	"github.com/smukkama/home-monitor/internal/protocol"
	"go.uber.org/zap"
)

// ReadingSource supplies the readings of one cycle. Per-item problems are
// returned alongside the readings; err means nothing could be fetched.
type ReadingSource interface {
	FetchReadings(ctx context.Context) (readings []protocol.SensorReading, problems []error, err error)
}

// Store persists State between invocations.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Locker provides the run lock that keeps invocations from overlapping.
type Locker interface {
	Acquire(ctx context.Context) (release func() error, err error)
}

// DigestExporter writes an emitted digest somewhere durable.
type DigestExporter interface {
	Export(s *aggregation.Summary) (string, error)
}

// EventLog keeps a history of notified events.
type EventLog interface {
	RecordEvents(ctx context.Context, events []alarming.Event) error
}

// saveTimeout bounds the end-of-cycle state save, which does not follow
// cancellation of the cycle's context.
const saveTimeout = 10 * time.Second

// Runner wires a cycle to its collaborators.
type Runner struct {
	cfg        Config
	source     ReadingSource
	store      Store
	dispatcher notification.Dispatcher
	exporter   DigestExporter
	eventLog   EventLog
	logger     *zap.Logger
	dryRun     bool
}

// RunnerOption configures optional Runner behaviour.
type RunnerOption func(*Runner)

// WithExporter exports every emitted digest.
func WithExporter(e DigestExporter) RunnerOption {
	return func(r *Runner) { r.exporter = e }
}

// WithEventLog records every cycle's events.
func WithEventLog(l EventLog) RunnerOption {
	return func(r *Runner) { r.eventLog = l }
}

// WithDryRun logs notifications instead of dispatching them and never
// writes state or exports.
func WithDryRun() RunnerOption {
	return func(r *Runner) { r.dryRun = true }
}

func NewRunner(cfg Config, source ReadingSource, store Store, dispatcher notification.Dispatcher, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:        cfg,
		source:     source,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dryRun {
		r.dispatcher = notification.NewLogDispatcher(logger)
	}
	return r
}

// RunCycle loads state, evaluates one cycle, dispatches its notifications
// and saves the new state. State is saved on every path once loading has
// been attempted, including delivery failures and panics. The returned
// error is non-nil only when the new state could not be saved.
func (r *Runner) RunCycle(ctx context.Context, now time.Time) (res CycleResult, err error) {
	logger := r.logger.With(zap.String("run_id", uuid.NewString()))
	var reports []Report

	prior, loadErr := r.store.Load(ctx)
	if loadErr != nil {
		reports = append(reports, Report{
			Kind: ReportStatePersistence,
			Err:  fmt.Errorf("falling back to empty state: %w", loadErr),
		})
		prior = NewState()
	}

	next := prior
	defer func() {
		if r.dryRun {
			return
		}
		// The cycle's context may already be cancelled by a shutdown signal;
		// notifications sent so far must still be recorded.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
		if saveErr := r.store.Save(saveCtx, next); saveErr != nil {
			saveErr = fmt.Errorf("failed to save state: %w", saveErr)
			res.Reports = append(res.Reports, Report{Kind: ReportStatePersistence, Err: saveErr})
			logger.Error("State not saved", zap.Error(saveErr))
			err = errors.Join(err, saveErr)
		}
	}()

	readings, problems, fetchErr := r.source.FetchReadings(ctx)
	if fetchErr != nil {
		reports = append(reports, Report{Kind: ReportSource, Err: fmt.Errorf("fetch readings: %w", fetchErr)})
	}
	for _, p := range problems {
		reports = append(reports, classifySourceProblem(p))
	}

	res, next = EvaluateCycle(now, readings, r.cfg, prior)
	res.Reports = append(reports, res.Reports...)

	sent := 0
	for _, n := range res.Notifications {
		if err := r.dispatcher.Send(ctx, n); err != nil {
			res.Reports = append(res.Reports, Report{
				Kind:     ReportDelivery,
				DeviceID: n.DeviceID,
				Err:      fmt.Errorf("%s %q: %w", n.Kind, n.Title, err),
			})
			continue
		}
		sent++
	}

	if r.eventLog != nil && len(res.Events) > 0 && !r.dryRun {
		if err := r.eventLog.RecordEvents(ctx, res.Events); err != nil {
			res.Reports = append(res.Reports, Report{Kind: ReportStatePersistence, Err: fmt.Errorf("record events: %w", err)})
		}
	}

	if res.Digest != nil && r.exporter != nil && !r.dryRun {
		path, err := r.exporter.Export(res.Digest)
		if err != nil {
			res.Reports = append(res.Reports, Report{Kind: ReportDelivery, Err: fmt.Errorf("export digest: %w", err)})
		} else {
			logger.Info("Digest exported", zap.String("path", path))
		}
	}

	for _, rep := range res.Reports {
		logger.Warn("Cycle problem",
			zap.String("kind", string(rep.Kind)),
			zap.String("device_id", rep.DeviceID),
			zap.Error(rep.Err),
		)
	}

	counts := CountReports(res.Reports)
	logger.Info("Cycle complete",
		zap.Time("now", now),
		zap.Int("readings", len(readings)),
		zap.Int("verdicts", res.Verdicts()),
		zap.Int("events", len(res.Events)),
		zap.Bool("digest", res.Digest != nil),
		zap.Int("notifications_sent", sent),
		zap.Int("delivery_failures", counts[ReportDelivery]),
		zap.Int("reports", len(res.Reports)),
		zap.Int("active_alerts", len(next.Alerts)),
	)

	return res, nil
}

// RunLocked acquires the run lock around RunCycle.
func (r *Runner) RunLocked(ctx context.Context, locker Locker, now time.Time) (CycleResult, error) {
	release, err := locker.Acquire(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	defer func() {
		if err := release(); err != nil {
			r.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()
	return r.RunCycle(ctx, now)
}

// Loop runs a cycle every interval until ctx is cancelled. Cycles that
// cannot take the lock are skipped.
func (r *Runner) Loop(ctx context.Context, locker Locker, interval time.Duration, clock func() time.Time) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunLocked(ctx, locker, clock()); err != nil {
			r.logger.Error("Cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
