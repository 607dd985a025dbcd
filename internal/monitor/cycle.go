// Package monitor runs polling cycles: it evaluates readings against the
// inventory, tracks alert state between cycles and produces the
// notifications to send.
package monitor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/notification"
	"github.com/smukkama/home-monitor/internal/protocol"
)

// Policy holds the evaluation settings that do not live in the inventory.
type Policy struct {
	Alerts alarming.Policy
	// FreshnessWindow applies to devices whose inventory entry sets none.
	FreshnessWindow time.Duration
	Digest          aggregation.Schedule
}

// DefaultPolicy derives the freshness window from the poll interval.
func DefaultPolicy(pollInterval time.Duration) Policy {
	return Policy{
		Alerts:          alarming.DefaultPolicy(),
		FreshnessWindow: 3 * pollInterval,
		Digest:          aggregation.DefaultSchedule(),
	}
}

// Config is the static input of a cycle.
type Config struct {
	Inventory *inventory.Inventory
	Policy    Policy
}

// CycleResult is everything a cycle produced besides the new state.
type CycleResult struct {
	Breaches      []alarming.BreachVerdict
	Staleness     []alarming.StalenessVerdict
	Events        []alarming.Event
	Digest        *aggregation.Summary
	Notifications []notification.Notification
	Reports       []Report
}

// Verdicts is the number of breach and staleness verdicts evaluated.
func (r CycleResult) Verdicts() int {
	return len(r.Breaches) + len(r.Staleness)
}

// EvaluateCycle runs one polling cycle. It has no side effects: prior is
// not modified and the same inputs always give the same outputs.
func EvaluateCycle(now time.Time, readings []protocol.SensorReading, cfg Config, prior State) (CycleResult, State) {
	var res CycleResult
	next := prior.Clone()

	inv := cfg.Inventory
	if inv == nil {
		res.Reports = append(res.Reports, Report{Kind: ReportConfiguration, Err: errors.New("no inventory loaded")})
		return res, next
	}

	for _, p := range inv.Problems() {
		res.Reports = append(res.Reports, Report{Kind: ReportConfiguration, DeviceID: p.Serial, Err: p.Err})
	}

	tracker := alarming.NewTracker(cfg.Policy.Alerts, next.Alerts)
	window := next.Digest.Clone()

	observe := func(obs alarming.Observation) {
		ev, err := tracker.Observe(now, obs)
		if err != nil {
			res.Reports = append(res.Reports, Report{Kind: ReportInputValidation, DeviceID: obs.Key.DeviceID, Err: err})
			return
		}
		if ev != nil {
			res.Events = append(res.Events, *ev)
			window.RecordEvent(*ev)
		}
	}

	for _, reading := range orderReadings(readings) {
		if err := reading.Validate(); err != nil {
			res.Reports = append(res.Reports, Report{Kind: ReportInputValidation, DeviceID: reading.DeviceID, Err: err})
			continue
		}
		device, err := inv.Device(reading.DeviceID)
		if err != nil {
			if errors.Is(err, inventory.ErrUnknownDevice) {
				res.Reports = append(res.Reports, Report{
					Kind:     ReportConfiguration,
					DeviceID: reading.DeviceID,
					Err:      fmt.Errorf("reading ignored: %w", err),
				})
			}
			// Misconfigured devices were already reported above.
			continue
		}

		if reading.Timestamp.After(next.LastSeen[device.Serial]) {
			next.LastSeen[device.Serial] = reading.Timestamp
		}

		verdicts := alarming.Evaluate(reading, func(p inventory.Parameter) (inventory.Threshold, bool) {
			return inv.ThresholdFor(device, p)
		})
		for _, v := range verdicts {
			res.Breaches = append(res.Breaches, v)
			window.RecordBreach(v)
			observe(alarming.FromBreach(v))
		}
	}

	for _, device := range inv.Devices() {
		v := alarming.CheckStaleness(device.Serial, next.LastSeen[device.Serial], now,
			inv.FreshnessFor(device, cfg.Policy.FreshnessWindow))
		res.Staleness = append(res.Staleness, v)
		window.RecordStaleness(v)
		observe(alarming.FromStaleness(v))
	}

	// Devices removed from the inventory take their state with them.
	known := func(serial string) bool {
		_, err := inv.Device(serial)
		return err == nil || !errors.Is(err, inventory.ErrUnknownDevice)
	}
	tracker.Forget(func(k alarming.AlertKey) bool { return known(k.DeviceID) })
	for serial := range next.LastSeen {
		if !known(serial) {
			delete(next.LastSeen, serial)
		}
	}

	res.Digest, next.Digest = window.Advance(now, cfg.Policy.Digest, inv)
	next.Alerts = tracker.States()
	next.UpdatedAt = now

	formatter := notification.NewFormatter(inv)
	for _, ev := range res.Events {
		res.Notifications = append(res.Notifications, formatter.FormatEvent(ev))
	}
	if res.Digest != nil {
		res.Notifications = append(res.Notifications, formatter.FormatDigest(res.Digest))
	}

	return res, next
}

// orderReadings sorts a copy of readings by device, then capture time.
func orderReadings(readings []protocol.SensorReading) []protocol.SensorReading {
	out := make([]protocol.SensorReading, len(readings))
	copy(out, readings)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
