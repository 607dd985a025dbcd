package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 11, 12, 0, 0, 0, time.UTC)

func testFormatter(t *testing.T) *Formatter {
	inv, err := inventory.New(inventory.Fahrenheit, nil, &inventory.House{
		ID: "cabin", Name: "Cabin",
		Rooms: []*inventory.Room{{ID: "kitchen", Name: "Kitchen", Devices: []*inventory.Device{{Serial: "D1"}}}},
	})
	require.NoError(t, err)
	return NewFormatter(inv)
}

func event(kind alarming.EventKind, p inventory.Parameter, value float64, th inventory.Threshold) alarming.Event {
	return alarming.Event{Kind: kind, DeviceID: "D1", Parameter: p, Value: value, Threshold: th, Since: t0, At: t0}
}

func TestFormatEvent_Breaches(t *testing.T) {
	f := testFormatter(t)

	cases := []struct {
		name  string
		event alarming.Event
		title string
		body  string
	}{
		{
			name:  "cold",
			event: event(alarming.EventAlert, inventory.ParamTemperature, 48.2, inventory.Threshold{Op: inventory.OpLessOrEqual, Limit: 50}),
			title: "Brrr it's cold!",
			body:  "Cabin Kitchen is 48.2°F.",
		},
		{
			name:  "hot",
			event: event(alarming.EventAlert, inventory.ParamTemperature, 90, inventory.Threshold{Op: inventory.OpGreater, Limit: 85}),
			title: "It's hot!",
			body:  "Cabin Kitchen is 90°F.",
		},
		{
			name:  "battery",
			event: event(alarming.EventAlert, inventory.ParamBattery, 15, inventory.Threshold{Op: inventory.OpLess, Limit: 20}),
			title: "Battery Warning!",
			body:  "Cabin Kitchen is at 15%.",
		},
		{
			name:  "co2",
			event: event(alarming.EventAlert, inventory.ParamCO2, 1200, inventory.Threshold{Op: inventory.OpGreater, Limit: 1000}),
			title: "CO2 Warning!",
			body:  "Cabin Kitchen co2 is 1200 ppm, above 1000 ppm.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := f.FormatEvent(tc.event)
			assert.Equal(t, tc.title, n.Title)
			assert.Equal(t, tc.body, n.Body)
			assert.Equal(t, PriorityHigh, n.Priority)
			assert.Equal(t, KindAlert, n.Kind)
			assert.Equal(t, "D1", n.DeviceID)
		})
	}
}

func TestFormatEvent_ReminderAndRecovery(t *testing.T) {
	f := testFormatter(t)
	th := inventory.Threshold{Op: inventory.OpLess, Limit: 20}

	n := f.FormatEvent(event(alarming.EventReminder, inventory.ParamBattery, 14, th))
	assert.Equal(t, "Reminder: Battery Warning!", n.Title)
	assert.Equal(t, "Cabin Kitchen is at 14%.\nAlerting since Sun Oct 11 12:00.", n.Body)
	assert.Equal(t, PriorityDefault, n.Priority)

	n = f.FormatEvent(event(alarming.EventRecovered, inventory.ParamBattery, 25, th))
	assert.Equal(t, "Battery back to normal", n.Title)
	assert.Equal(t, "Cabin Kitchen battery is 25%.", n.Body)
	assert.Equal(t, PriorityLow, n.Priority)
	assert.Less(t, int(n.Priority), int(PriorityHigh))
}

func TestFormatEvent_Staleness(t *testing.T) {
	f := testFormatter(t)

	n := f.FormatEvent(alarming.Event{Kind: alarming.EventAlert, DeviceID: "D1", Parameter: alarming.ParamStaleness})
	assert.Equal(t, "Device offline", n.Title)
	assert.Equal(t, "Cabin Kitchen (D1) has never reported.", n.Body)
	assert.Equal(t, PriorityHigh, n.Priority)

	n = f.FormatEvent(alarming.Event{Kind: alarming.EventAlert, DeviceID: "D1", Parameter: alarming.ParamStaleness, LastSeen: t0})
	assert.Equal(t, "Cabin Kitchen (D1) has not reported since Sun Oct 11 12:00.", n.Body)

	n = f.FormatEvent(alarming.Event{Kind: alarming.EventRecovered, DeviceID: "D1", Parameter: alarming.ParamStaleness})
	assert.Equal(t, "Device back online", n.Title)
	assert.Equal(t, PriorityLow, n.Priority)
}

func TestFormatEvent_UnknownDeviceUsesSerial(t *testing.T) {
	n := testFormatter(t).FormatEvent(alarming.Event{
		Kind: alarming.EventAlert, DeviceID: "X9", Parameter: inventory.ParamBattery, Value: 5,
		Threshold: inventory.Threshold{Op: inventory.OpLess, Limit: 20},
	})
	assert.Equal(t, "X9 is at 5%.", n.Body)
}

func TestFormatEvent_Deterministic(t *testing.T) {
	f := testFormatter(t)
	e := event(alarming.EventAlert, inventory.ParamBattery, 15, inventory.Threshold{Op: inventory.OpLess, Limit: 20})
	assert.Equal(t, f.FormatEvent(e), f.FormatEvent(e))
}

func TestFormatDigest(t *testing.T) {
	s := &aggregation.Summary{
		PeriodStart:     t0.AddDate(0, 0, -7),
		PeriodEnd:       t0,
		Devices:         2,
		BreachedDevices: 1,
		StaleDevices:    1,
		Alerts:          2,
		Houses: []aggregation.HouseSummary{{Name: "Cabin", Rooms: []aggregation.RoomSummary{{Name: "Kitchen", Devices: []aggregation.DeviceSummary{
			{
				Serial:   "D1",
				Location: "Cabin Kitchen",
				Values:   map[inventory.Parameter]float64{inventory.ParamBattery: 15, inventory.ParamTemperature: 68.5},
				Breached: []inventory.Parameter{inventory.ParamBattery},
				Alerts:   1,
			},
			{Serial: "D2", Location: "Cabin Loft", Stale: true, Alerts: 1},
			{Serial: "D3", Location: "Cabin Attic", Values: map[inventory.Parameter]float64{inventory.ParamHumidity: 40}},
		}}}}},
	}

	n := testFormatter(t).FormatDigest(s)
	assert.Equal(t, KindDigest, n.Kind)
	assert.Equal(t, "Weekly Report", n.Title)
	assert.Equal(t, PriorityLow, n.Priority)

	lines := strings.Split(n.Body, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2 devices, 1 breached, 1 offline, 2 alerts since Sun Oct 4 12:00.", lines[0])
	assert.Equal(t, "Cabin Kitchen: temperature 68.5°F battery 15% [battery breached, 1 alerts]", lines[1])
	assert.Equal(t, "Cabin Loft: [never reported, 1 alerts]", lines[2])
	assert.Equal(t, "Cabin Attic: humidity 40% [ok]", lines[3])
}

func TestFormatDigest_RecoveredDeviceIsOk(t *testing.T) {
	line := testFormatter(t).digestLine(aggregation.DeviceSummary{
		Location: "Cabin Kitchen",
		Values:   map[inventory.Parameter]float64{inventory.ParamBattery: 90},
		Alerts:   2,
	})
	assert.Equal(t, "Cabin Kitchen: battery 90% [ok, 2 alerts]", line)

	line = testFormatter(t).digestLine(aggregation.DeviceSummary{Location: "Cabin Loft", Misconfigured: true})
	assert.Equal(t, "Cabin Loft: [misconfigured]", line)
}
