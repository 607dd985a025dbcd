package aggregation

import (
	"errors"
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
)

// Summary is a digest: every device in the inventory grouped by house and
// room.
type Summary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Houses      []HouseSummary

	Devices         int
	BreachedDevices int
	StaleDevices    int
	Alerts          int
}

type HouseSummary struct {
	ID    string
	Name  string
	Rooms []RoomSummary
}

type RoomSummary struct {
	ID      string
	Name    string
	Devices []DeviceSummary
}

// DeviceSummary is one device's health at digest time.
type DeviceSummary struct {
	Serial        string
	Type          string
	Location      string
	Breached      []inventory.Parameter
	Stale         bool
	Alerts        int
	Values        map[inventory.Parameter]float64
	LastSeen      time.Time
	Misconfigured bool
}

// Healthy means nothing is breached, the device is reporting and it is
// configured correctly.
func (d DeviceSummary) Healthy() bool {
	return len(d.Breached) == 0 && !d.Stale && !d.Misconfigured
}

// Summarize renders a window against the inventory hierarchy. Devices in
// the window that are no longer in the inventory are left out.
func Summarize(w Window, inv *inventory.Inventory, now time.Time) *Summary {
	s := &Summary{PeriodStart: w.StartedAt, PeriodEnd: now}
	if inv == nil {
		return s
	}

	for _, h := range inv.Houses {
		hs := HouseSummary{ID: h.ID, Name: h.Name}
		for _, r := range h.Rooms {
			rs := RoomSummary{ID: r.ID, Name: r.Name}
			for _, d := range r.Devices {
				if d == nil || d.Serial == "" {
					continue
				}
				ds := summarizeDevice(d, w.Devices[d.Serial])
				if _, err := inv.Device(d.Serial); err != nil && !errors.Is(err, inventory.ErrUnknownDevice) {
					// Misconfigured devices are never evaluated, so a missing
					// tally says nothing about whether they report.
					ds.Misconfigured = true
					ds.Stale = false
				}

				s.Devices++
				if len(ds.Breached) > 0 {
					s.BreachedDevices++
				}
				if ds.Stale {
					s.StaleDevices++
				}
				s.Alerts += ds.Alerts
				rs.Devices = append(rs.Devices, ds)
			}
			hs.Rooms = append(hs.Rooms, rs)
		}
		s.Houses = append(s.Houses, hs)
	}
	return s
}

func summarizeDevice(d *inventory.Device, t *DeviceTally) DeviceSummary {
	ds := DeviceSummary{
		Serial:   d.Serial,
		Type:     d.Type,
		Location: d.Location(),
		Values:   map[inventory.Parameter]float64{},
	}
	if t == nil {
		// Never observed in this window.
		ds.Stale = true
		return ds
	}

	for p, v := range t.Values {
		ds.Values[p] = v
	}
	for p, breached := range t.Breached {
		if breached {
			ds.Breached = append(ds.Breached, p)
		}
	}
	inventory.SortParameters(ds.Breached)
	ds.Stale = t.Stale
	ds.LastSeen = t.LastSeen
	ds.Alerts = t.Alerts
	return ds
}

// AllDevices flattens the summary in inventory order.
func (s *Summary) AllDevices() []DeviceSummary {
	var out []DeviceSummary
	for _, h := range s.Houses {
		for _, r := range h.Rooms {
			out = append(out, r.Devices...)
		}
	}
	return out
}

// ValueParameters lists every parameter with at least one value in the
// summary, in display order.
func (s *Summary) ValueParameters() []inventory.Parameter {
	seen := map[inventory.Parameter]bool{}
	for _, d := range s.AllDevices() {
		for p := range d.Values {
			seen[p] = true
		}
	}
	out := make([]inventory.Parameter, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	inventory.SortParameters(out)
	return out
}
