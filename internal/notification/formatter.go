package notification

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/inventory"
)

// Formatter renders events. It holds no state besides the inventory used
// to name devices, so identical events always render identically.
type Formatter struct {
	inv  *inventory.Inventory
	unit inventory.TemperatureUnit
}

func NewFormatter(inv *inventory.Inventory) *Formatter {
	f := &Formatter{inv: inv, unit: inventory.Celsius}
	if inv != nil {
		f.unit = inv.TemperatureUnit
	}
	return f
}

// FormatEvent renders an alert, reminder or recovery.
func (f *Formatter) FormatEvent(e alarming.Event) Notification {
	n := Notification{
		Kind:      string(e.Kind),
		DeviceID:  e.DeviceID,
		Parameter: string(e.Parameter),
	}
	loc := f.location(e.DeviceID)

	if e.Stale() {
		f.formatStaleness(&n, e, loc)
		return n
	}

	value := f.value(e.Parameter, e.Value)
	switch e.Kind {
	case alarming.EventAlert, alarming.EventReminder:
		n.Title, n.Body = f.breachText(e, loc, value)
		n.Priority = PriorityHigh
		n.Tags = []string{"warning", string(e.Parameter)}
		if e.Kind == alarming.EventReminder {
			n.Title = "Reminder: " + n.Title
			n.Body += fmt.Sprintf("\nAlerting since %s.", formatTime(e.Since))
			n.Priority = PriorityDefault
		}
	case alarming.EventRecovered:
		n.Title = fmt.Sprintf("%s back to normal", e.Parameter.Label())
		n.Body = fmt.Sprintf("%s %s is %s.", loc, strings.ToLower(e.Parameter.Label()), value)
		n.Priority = PriorityLow
		n.Tags = []string{"white_check_mark", string(e.Parameter)}
	}
	return n
}

func (f *Formatter) breachText(e alarming.Event, loc, value string) (string, string) {
	th := e.Threshold
	below := th.Op == inventory.OpLess || th.Op == inventory.OpLessOrEqual

	switch {
	case e.Parameter == inventory.ParamTemperature && below:
		return "Brrr it's cold!", fmt.Sprintf("%s is %s.", loc, value)
	case e.Parameter == inventory.ParamTemperature:
		return "It's hot!", fmt.Sprintf("%s is %s.", loc, value)
	case e.Parameter == inventory.ParamBattery:
		return "Battery Warning!", fmt.Sprintf("%s is at %s.", loc, value)
	default:
		return fmt.Sprintf("%s Warning!", e.Parameter.Label()),
			fmt.Sprintf("%s %s is %s, %s %s.", loc, strings.ToLower(e.Parameter.Label()), value,
				th.Op.Phrase(), f.value(e.Parameter, th.Limit))
	}
}

func (f *Formatter) formatStaleness(n *Notification, e alarming.Event, loc string) {
	switch e.Kind {
	case alarming.EventRecovered:
		n.Title = "Device back online"
		n.Body = fmt.Sprintf("%s is reporting again.", loc)
		n.Priority = PriorityLow
		n.Tags = []string{"white_check_mark", "signal"}
		return
	case alarming.EventReminder:
		n.Title = "Reminder: Device offline"
		n.Priority = PriorityDefault
	default:
		n.Title = "Device offline"
		n.Priority = PriorityHigh
	}
	n.Tags = []string{"warning", "signal"}
	if e.LastSeen.IsZero() {
		n.Body = fmt.Sprintf("%s (%s) has never reported.", loc, e.DeviceID)
		return
	}
	n.Body = fmt.Sprintf("%s (%s) has not reported since %s.", loc, e.DeviceID, formatTime(e.LastSeen))
}

// FormatDigest renders the weekly summary, one line per device.
func (f *Formatter) FormatDigest(s *aggregation.Summary) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "%d devices, %d breached, %d offline, %d alerts since %s.",
		s.Devices, s.BreachedDevices, s.StaleDevices, s.Alerts, formatTime(s.PeriodStart))

	for _, d := range s.AllDevices() {
		b.WriteString("\n")
		b.WriteString(f.digestLine(d))
	}

	return Notification{
		Kind:     KindDigest,
		Title:    "Weekly Report",
		Body:     b.String(),
		Priority: PriorityLow,
		Tags:     []string{"calendar"},
	}
}

func (f *Formatter) digestLine(d aggregation.DeviceSummary) string {
	parts := []string{d.Location + ":"}

	for _, p := range inventory.Parameters() {
		if v, ok := d.Values[p]; ok {
			parts = append(parts, fmt.Sprintf("%s %s", strings.ToLower(p.Label()), f.value(p, v)))
		}
	}

	var flags []string
	if d.Healthy() {
		flags = append(flags, "ok")
	}
	switch {
	case d.Misconfigured:
		flags = append(flags, "misconfigured")
	case d.Stale && d.LastSeen.IsZero():
		flags = append(flags, "never reported")
	case d.Stale:
		flags = append(flags, "offline since "+formatTime(d.LastSeen))
	}
	for _, p := range d.Breached {
		flags = append(flags, string(p)+" breached")
	}
	if d.Alerts > 0 {
		flags = append(flags, fmt.Sprintf("%d alerts", d.Alerts))
	}

	return strings.Join(parts, " ") + " [" + strings.Join(flags, ", ") + "]"
}

func (f *Formatter) location(serial string) string {
	if f.inv == nil {
		return serial
	}
	d, err := f.inv.Device(serial)
	if err != nil {
		return serial
	}
	return d.Location()
}

func (f *Formatter) value(p inventory.Parameter, v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + p.Unit(f.unit)
}

func formatTime(t time.Time) string {
	return t.Format("Mon Jan 2 15:04")
}
