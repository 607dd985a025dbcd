package inventory

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Parameter is a sensor measurement kind reported by a monitor.
type Parameter string

const (
	ParamTemperature Parameter = "temperature"
	ParamHumidity    Parameter = "humidity"
	ParamBattery     Parameter = "battery"
	ParamCO2         Parameter = "co2"
	ParamVOC         Parameter = "voc"
	ParamRadon       Parameter = "radon"
	ParamPM1         Parameter = "pm1"
	ParamPM25        Parameter = "pm25"
	ParamPressure    Parameter = "pressure"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidOperator  = errors.New("invalid comparison operator")
)

type parameterInfo struct {
	label string
	unit  string
}

var parameters = map[Parameter]parameterInfo{
	ParamTemperature: {label: "Temperature"},
	ParamHumidity:    {label: "Humidity", unit: "%"},
	ParamBattery:     {label: "Battery", unit: "%"},
	ParamCO2:         {label: "CO2", unit: " ppm"},
	ParamVOC:         {label: "VOC", unit: " ppb"},
	ParamRadon:       {label: "Radon", unit: " Bq/m3"},
	ParamPM1:         {label: "PM1", unit: " ug/m3"},
	ParamPM25:        {label: "PM2.5", unit: " ug/m3"},
	ParamPressure:    {label: "Pressure", unit: " hPa"},
}

// orderedParameters fixes the iteration order used for verdicts and reports.
var orderedParameters = []Parameter{
	ParamTemperature,
	ParamHumidity,
	ParamBattery,
	ParamCO2,
	ParamVOC,
	ParamRadon,
	ParamPM1,
	ParamPM25,
	ParamPressure,
}

// Parameters returns every known parameter in display order.
func Parameters() []Parameter {
	out := make([]Parameter, len(orderedParameters))
	copy(out, orderedParameters)
	return out
}

// ParseParameter validates a parameter name.
func ParseParameter(name string) (Parameter, error) {
	p := Parameter(name)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return p, nil
}

// Valid reports whether p is one of the known parameter kinds.
func (p Parameter) Valid() bool {
	_, ok := parameters[p]
	return ok
}

// Label returns a human readable name for the parameter.
func (p Parameter) Label() string {
	if info, ok := parameters[p]; ok {
		return info.label
	}
	return string(p)
}

// Rank orders parameters for display; unknown parameters sort last.
func (p Parameter) Rank() int {
	for i, known := range orderedParameters {
		if known == p {
			return i
		}
	}
	return len(orderedParameters)
}

// Operator is a threshold comparison.
type Operator string

const (
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
)

// Valid returns true when operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	default:
		return false
	}
}

// Compare reports whether value satisfies "value <op> limit".
func (o Operator) Compare(value, limit float64) bool {
	switch o {
	case OpLess:
		return value < limit
	case OpLessOrEqual:
		return value <= limit
	case OpGreater:
		return value > limit
	case OpGreaterOrEqual:
		return value >= limit
	default:
		return false
	}
}

// Phrase describes the operator in notification text.
func (o Operator) Phrase() string {
	switch o {
	case OpLess:
		return "below"
	case OpLessOrEqual:
		return "at or below"
	case OpGreater:
		return "above"
	case OpGreaterOrEqual:
		return "at or above"
	default:
		return string(o)
	}
}

// Threshold is the (operator, limit) pair configured for one parameter.
// A reading breaches the threshold when "value <op> limit" holds.
type Threshold struct {
	Op    Operator `json:"op"`
	Limit float64  `json:"limit"`
}

// Breached evaluates value against the threshold.
func (t Threshold) Breached(value float64) bool {
	return t.Op.Compare(value, t.Limit)
}

// Validate checks the operator and limit.
func (t Threshold) Validate() error {
	if !t.Op.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperator, t.Op)
	}
	if math.IsNaN(t.Limit) || math.IsInf(t.Limit, 0) {
		return fmt.Errorf("limit must be finite, got %v", t.Limit)
	}
	return nil
}

func (t Threshold) String() string {
	return fmt.Sprintf("%s %g", t.Op, t.Limit)
}

// Thresholds maps parameters to their configured threshold.
type Thresholds map[Parameter]Threshold

// Validate checks every entry, naming the first offending parameter.
func (ts Thresholds) Validate() error {
	for _, p := range sortedKeys(ts) {
		if !p.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownParameter, p)
		}
		if err := ts[p].Validate(); err != nil {
			return fmt.Errorf("threshold %s: %w", p, err)
		}
	}
	return nil
}

func sortedKeys(ts Thresholds) []Parameter {
	keys := make([]Parameter, 0, len(ts))
	for p := range ts {
		keys = append(keys, p)
	}
	SortParameters(keys)
	return keys
}

// SortParameters orders ps in display order.
func SortParameters(ps []Parameter) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Rank() != ps[j].Rank() {
			return ps[i].Rank() < ps[j].Rank()
		}
		return ps[i] < ps[j]
	})
}
