package alarming

import (
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/protocol"
)

// BreachVerdict is the result of comparing one reading parameter against
// its threshold.
type BreachVerdict struct {
	DeviceID     string
	Parameter    inventory.Parameter
	Value        float64
	Threshold    inventory.Threshold
	HasThreshold bool
	Timestamp    time.Time
	Breached     bool
}

// ThresholdLookup returns the effective threshold for a parameter of the
// device being evaluated.
type ThresholdLookup func(p inventory.Parameter) (inventory.Threshold, bool)

// Evaluate produces one verdict per parameter in the reading, in display
// order. Parameters without a threshold are reported as not breached.
func Evaluate(reading protocol.SensorReading, lookup ThresholdLookup) []BreachVerdict {
	params := reading.Parameters()
	verdicts := make([]BreachVerdict, 0, len(params))

	for _, p := range params {
		value := reading.Values[p]
		v := BreachVerdict{
			DeviceID:  reading.DeviceID,
			Parameter: p,
			Value:     value,
			Timestamp: reading.Timestamp,
		}
		if lookup != nil {
			if th, ok := lookup(p); ok {
				v.Threshold = th
				v.HasThreshold = true
				v.Breached = th.Breached(value)
			}
		}
		verdicts = append(verdicts, v)
	}

	return verdicts
}
