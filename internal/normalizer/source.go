package normalizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/smukkama/home-monitor/internal/airthings"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/protocol"
)

// SamplesFetcher is the part of the API client the APISource needs.
type SamplesFetcher interface {
	LatestSamples(ctx context.Context, serial string) (airthings.Samples, error)
}

// APISource polls the latest sample of every inventory device.
type APISource struct {
	client    SamplesFetcher
	inventory *inventory.Inventory
}

// NewAPISource creates a reading source backed by the device API.
func NewAPISource(client SamplesFetcher, inv *inventory.Inventory) *APISource {
	return &APISource{client: client, inventory: inv}
}

// FetchReadings returns the readings that could be fetched and normalized.
// Per-device failures are returned as *FetchError or *ValidationError and
// never abort the batch.
func (s *APISource) FetchReadings(ctx context.Context) ([]protocol.SensorReading, []error, error) {
	var (
		readings []protocol.SensorReading
		problems []error
	)
	for _, d := range s.inventory.Devices() {
		if err := ctx.Err(); err != nil {
			return readings, problems, err
		}
		samples, err := s.client.LatestSamples(ctx, d.Serial)
		if err != nil {
			problems = append(problems, &FetchError{DeviceID: d.Serial, Err: err})
			continue
		}
		reading, err := Normalize(d.Serial, samples, s.inventory.TemperatureUnit)
		if err != nil {
			problems = append(problems, &ValidationError{DeviceID: d.Serial, Err: err})
			continue
		}
		readings = append(readings, reading)
	}
	return readings, problems, nil
}

// BatchSource reads a JSON-lines reading batch that an external collector
// has already normalized.
type BatchSource struct {
	path  string
	stdin io.Reader
}

// NewBatchSource reads from path, or from stdin when path is "-".
func NewBatchSource(path string, stdin io.Reader) *BatchSource {
	return &BatchSource{path: path, stdin: stdin}
}

func (s *BatchSource) FetchReadings(ctx context.Context) ([]protocol.SensorReading, []error, error) {
	var r io.Reader
	if s.path == "-" {
		r = s.stdin
	} else {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open reading batch: %w", err)
		}
		defer f.Close()
		r = f
	}

	readings, lineErrs, err := protocol.DecodeReadingBatch(r)
	problems := make([]error, 0, len(lineErrs))
	for _, le := range lineErrs {
		var lineErr *protocol.LineError
		deviceID := ""
		if errors.As(le, &lineErr) {
			deviceID = lineErr.DeviceID
		}
		problems = append(problems, &ValidationError{DeviceID: deviceID, Err: le})
	}
	return readings, problems, err
}
