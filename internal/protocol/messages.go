package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
)

var (
	ErrMissingDeviceID  = errors.New("device_id is required")
	ErrMissingTimestamp = errors.New("timestamp is required")
	ErrNoParameters     = errors.New("reading carries no parameters")
)

// SensorReading is one normalized sample from one device. Values are in the
// units the inventory's thresholds are written in.
type SensorReading struct {
	DeviceID  string
	Timestamp time.Time
	Values    map[inventory.Parameter]float64
}

// NewSensorReading copies values so the reading cannot be mutated through
// the caller's map.
func NewSensorReading(deviceID string, ts time.Time, values map[inventory.Parameter]float64) SensorReading {
	cp := make(map[inventory.Parameter]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return SensorReading{DeviceID: deviceID, Timestamp: ts, Values: cp}
}

// Validate checks the fields every reading must carry.
func (r SensorReading) Validate() error {
	if r.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if r.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	for p := range r.Values {
		if !p.Valid() {
			return fmt.Errorf("%w: %q", inventory.ErrUnknownParameter, p)
		}
	}
	return nil
}

// Parameters returns the reported parameters in display order.
func (r SensorReading) Parameters() []inventory.Parameter {
	ps := make([]inventory.Parameter, 0, len(r.Values))
	for p := range r.Values {
		ps = append(ps, p)
	}
	inventory.SortParameters(ps)
	return ps
}

// ReadingRecord is the wire format of a reading batch line.
type ReadingRecord struct {
	DeviceID   string             `json:"device_id"`
	Timestamp  string             `json:"timestamp"`
	Parameters map[string]float64 `json:"parameters"`
}

// Parse converts a ReadingRecord to a SensorReading.
func (rec *ReadingRecord) Parse() (SensorReading, error) {
	if rec.DeviceID == "" {
		return SensorReading{}, ErrMissingDeviceID
	}
	if rec.Timestamp == "" {
		return SensorReading{}, ErrMissingTimestamp
	}
	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		return SensorReading{}, fmt.Errorf("invalid timestamp format (must be RFC3339): %w", err)
	}
	if len(rec.Parameters) == 0 {
		return SensorReading{}, ErrNoParameters
	}

	values := make(map[inventory.Parameter]float64, len(rec.Parameters))
	for name, v := range rec.Parameters {
		p, err := inventory.ParseParameter(name)
		if err != nil {
			return SensorReading{}, err
		}
		values[p] = v
	}
	return SensorReading{DeviceID: rec.DeviceID, Timestamp: ts, Values: values}, nil
}

// EncodeReading renders r as a ReadingRecord line.
func EncodeReading(r SensorReading) ([]byte, error) {
	rec := ReadingRecord{
		DeviceID:   r.DeviceID,
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
		Parameters: make(map[string]float64, len(r.Values)),
	}
	for p, v := range r.Values {
		rec.Parameters[string(p)] = v
	}
	return json.Marshal(rec)
}

// LineError ties a decode failure to its line in a reading batch.
type LineError struct {
	Line     int
	DeviceID string
	Err      error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// MaxBatchLineSize is the longest reading batch line that is decoded.
// Longer lines are reported as a *LineError and skipped.
const MaxBatchLineSize = 1 << 20

// DecodeReadingBatch reads JSON-lines ReadingRecords. Malformed or
// oversized lines are returned as *LineError values and do not stop
// decoding.
func DecodeReadingBatch(r io.Reader) ([]SensorReading, []error, error) {
	var (
		readings []SensorReading
		errs     []error
		line     int
	)
	br := bufio.NewReader(r)
	for {
		raw, tooLong, err := readLine(br, MaxBatchLineSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return readings, errs, fmt.Errorf("failed to read batch: %w", err)
		}
		line++
		if tooLong {
			errs = append(errs, &LineError{Line: line, Err: fmt.Errorf("line exceeds %d bytes", MaxBatchLineSize)})
			continue
		}
		if len(raw) == 0 {
			continue
		}
		var rec ReadingRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			errs = append(errs, &LineError{Line: line, Err: fmt.Errorf("invalid JSON: %w", err)})
			continue
		}
		reading, err := rec.Parse()
		if err != nil {
			errs = append(errs, &LineError{Line: line, DeviceID: rec.DeviceID, Err: err})
			continue
		}
		readings = append(readings, reading)
	}
	return readings, errs, nil
}

// readLine returns the next line without its terminator. A line longer
// than limit is consumed but not kept.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return nil, false, err
		}
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}
