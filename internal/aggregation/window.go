// Package aggregation accumulates verdicts between digests and renders the
// weekly device health summary.
package aggregation

import (
	"time"

	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/inventory"
)

// DeviceTally is what a window remembers about one device.
type DeviceTally struct {
	Values   map[inventory.Parameter]float64 `json:"values,omitempty"`
	Breached map[inventory.Parameter]bool    `json:"breached,omitempty"`
	Stale    bool                            `json:"stale"`
	LastSeen time.Time                       `json:"last_seen,omitempty"`
	Alerts   int                             `json:"alerts"`
}

func (t *DeviceTally) clone() *DeviceTally {
	cp := &DeviceTally{Stale: t.Stale, LastSeen: t.LastSeen, Alerts: t.Alerts}
	if t.Values != nil {
		cp.Values = make(map[inventory.Parameter]float64, len(t.Values))
		for k, v := range t.Values {
			cp.Values[k] = v
		}
	}
	if t.Breached != nil {
		cp.Breached = make(map[inventory.Parameter]bool, len(t.Breached))
		for k, v := range t.Breached {
			cp.Breached[k] = v
		}
	}
	return cp
}

// Window is the digest accumulation since the last emission.
type Window struct {
	StartedAt time.Time               `json:"started_at"`
	NextDue   time.Time               `json:"next_due"`
	Devices   map[string]*DeviceTally `json:"devices,omitempty"`
}

// Clone returns a deep copy.
func (w Window) Clone() Window {
	cp := Window{StartedAt: w.StartedAt, NextDue: w.NextDue}
	if w.Devices != nil {
		cp.Devices = make(map[string]*DeviceTally, len(w.Devices))
		for id, t := range w.Devices {
			cp.Devices[id] = t.clone()
		}
	}
	return cp
}

func (w *Window) tally(deviceID string) *DeviceTally {
	if w.Devices == nil {
		w.Devices = make(map[string]*DeviceTally)
	}
	t, ok := w.Devices[deviceID]
	if !ok {
		t = &DeviceTally{}
		w.Devices[deviceID] = t
	}
	return t
}

// RecordBreach keeps the latest value and breach status of a parameter.
func (w *Window) RecordBreach(v alarming.BreachVerdict) {
	t := w.tally(v.DeviceID)
	if t.Values == nil {
		t.Values = make(map[inventory.Parameter]float64)
	}
	t.Values[v.Parameter] = v.Value

	if v.Breached {
		if t.Breached == nil {
			t.Breached = make(map[inventory.Parameter]bool)
		}
		t.Breached[v.Parameter] = true
	} else {
		delete(t.Breached, v.Parameter)
	}
}

// RecordStaleness keeps the latest staleness status of a device.
func (w *Window) RecordStaleness(v alarming.StalenessVerdict) {
	t := w.tally(v.DeviceID)
	t.Stale = v.Stale
	if v.LastSeen.After(t.LastSeen) {
		t.LastSeen = v.LastSeen
	}
}

// RecordEvent counts new alerts. Reminders and recoveries are not counted.
func (w *Window) RecordEvent(e alarming.Event) {
	if e.Kind != alarming.EventAlert {
		return
	}
	w.tally(e.DeviceID).Alerts++
}

// Due reports whether a digest should be emitted at now.
func (w Window) Due(now time.Time) bool {
	return !w.NextDue.IsZero() && !now.Before(w.NextDue)
}

// Advance checks the schedule. The first call on an unscheduled window only
// schedules it. When the window is due a summary is produced and the
// returned window starts empty, due at the next boundary after now; however
// many boundaries were missed, only one digest is produced.
func (w Window) Advance(now time.Time, sched Schedule, inv *inventory.Inventory) (*Summary, Window) {
	next := w.Clone()
	if next.StartedAt.IsZero() {
		next.StartedAt = now
	}
	if next.NextDue.IsZero() {
		next.NextDue = sched.Next(now)
		return nil, next
	}
	if !next.Due(now) {
		return nil, next
	}

	summary := Summarize(next, inv, now)
	return summary, Window{StartedAt: now, NextDue: sched.Next(now)}
}
