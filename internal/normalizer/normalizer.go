// Package normalizer turns device API samples and reading batches into
// protocol.SensorReading records.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/smukkama/home-monitor/internal/airthings"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/protocol"
)

// sampleKeys maps Airthings sample fields to parameters. Fields not listed
// (rssi, relayDeviceType, ...) are not sensor parameters and are dropped.
var sampleKeys = map[string]inventory.Parameter{
	"temp":              inventory.ParamTemperature,
	"humidity":          inventory.ParamHumidity,
	"battery":           inventory.ParamBattery,
	"co2":               inventory.ParamCO2,
	"voc":               inventory.ParamVOC,
	"radonShortTermAvg": inventory.ParamRadon,
	"pm1":               inventory.ParamPM1,
	"pm25":              inventory.ParamPM25,
	"pressure":          inventory.ParamPressure,
}

// ValidationError is a reading that failed validation and was discarded.
type ValidationError struct {
	DeviceID string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("invalid reading: %v", e.Err)
	}
	return fmt.Sprintf("invalid reading from %s: %v", e.DeviceID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FetchError is a device whose data could not be retrieved this cycle.
type FetchError struct {
	DeviceID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.DeviceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Normalize converts one latest-samples payload. Temperatures arrive in
// Celsius and are converted to unit, rounded to two decimals.
func Normalize(serial string, samples airthings.Samples, unit inventory.TemperatureUnit) (protocol.SensorReading, error) {
	if serial == "" {
		return protocol.SensorReading{}, protocol.ErrMissingDeviceID
	}

	rawTime, ok := samples["time"]
	if !ok {
		return protocol.SensorReading{}, protocol.ErrMissingTimestamp
	}
	secs, err := toFloat(rawTime)
	if err != nil || secs <= 0 {
		return protocol.SensorReading{}, fmt.Errorf("%w: bad time value %v", protocol.ErrMissingTimestamp, rawTime)
	}
	ts := time.Unix(int64(secs), 0).UTC()

	values := make(map[inventory.Parameter]float64)
	for key, raw := range samples {
		p, known := sampleKeys[key]
		if !known {
			continue
		}
		v, err := toFloat(raw)
		if err != nil {
			return protocol.SensorReading{}, fmt.Errorf("field %s: %w", key, err)
		}
		if p == inventory.ParamTemperature {
			v = ConvertTemperature(v, unit)
		}
		values[p] = v
	}
	if len(values) == 0 {
		return protocol.SensorReading{}, protocol.ErrNoParameters
	}

	return protocol.NewSensorReading(serial, ts, values), nil
}

// ConvertTemperature converts a Celsius value into unit.
func ConvertTemperature(celsius float64, unit inventory.TemperatureUnit) float64 {
	if unit != inventory.Fahrenheit {
		return celsius
	}
	return math.Round((celsius*9/5+32)*100) / 100
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
