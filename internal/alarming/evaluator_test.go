package alarming

import (
	"testing"
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 11, 12, 0, 0, 0, time.UTC)

func batteryBelow(limit float64) ThresholdLookup {
	return func(p inventory.Parameter) (inventory.Threshold, bool) {
		if p == inventory.ParamBattery {
			return inventory.Threshold{Op: inventory.OpLess, Limit: limit}, true
		}
		return inventory.Threshold{}, false
	}
}

func TestEvaluate(t *testing.T) {
	reading := protocol.NewSensorReading("D1", t0, map[inventory.Parameter]float64{
		inventory.ParamHumidity:    40,
		inventory.ParamBattery:     15,
		inventory.ParamTemperature: 68,
	})

	verdicts := Evaluate(reading, batteryBelow(20))
	require.Len(t, verdicts, 3)

	assert.Equal(t, inventory.ParamTemperature, verdicts[0].Parameter)
	assert.False(t, verdicts[0].Breached)
	assert.False(t, verdicts[0].HasThreshold)

	assert.Equal(t, inventory.ParamHumidity, verdicts[1].Parameter)

	battery := verdicts[2]
	assert.Equal(t, inventory.ParamBattery, battery.Parameter)
	assert.True(t, battery.Breached)
	assert.True(t, battery.HasThreshold)
	assert.Equal(t, 15.0, battery.Value)
	assert.Equal(t, "D1", battery.DeviceID)
	assert.Equal(t, t0, battery.Timestamp)
}

func TestEvaluate_IsPure(t *testing.T) {
	reading := protocol.NewSensorReading("D1", t0, map[inventory.Parameter]float64{
		inventory.ParamBattery: 15,
		inventory.ParamCO2:     900,
	})
	first := Evaluate(reading, batteryBelow(20))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Evaluate(reading, batteryBelow(20)))
	}
}

func TestEvaluate_NoLookup(t *testing.T) {
	reading := protocol.NewSensorReading("D1", t0, map[inventory.Parameter]float64{
		inventory.ParamBattery: 1,
	})
	verdicts := Evaluate(reading, nil)
	require.Len(t, verdicts, 1)
	assert.False(t, verdicts[0].Breached)
}

func TestCheckStaleness(t *testing.T) {
	window := 3 * time.Hour

	assert.True(t, CheckStaleness("D2", t0, t0.Add(5*time.Hour), window).Stale)
	assert.False(t, CheckStaleness("D2", t0, t0.Add(1*time.Hour), window).Stale)
	assert.False(t, CheckStaleness("D2", t0, t0.Add(3*time.Hour), window).Stale)

	never := CheckStaleness("D3", time.Time{}, t0, window)
	assert.True(t, never.Stale)
	assert.True(t, never.LastSeen.IsZero())
}
