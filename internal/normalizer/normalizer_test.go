package normalizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smukkama/home-monitor/internal/airthings"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	samples := airthings.Samples{
		"temp":              10.0,
		"humidity":          41.0,
		"battery":           85.0,
		"radonShortTermAvg": 30.0,
		"rssi":              -60.0,
		"relayDeviceType":   "hub",
		"time":              1760202000.0,
	}

	r, err := Normalize("D1", samples, inventory.Fahrenheit)
	require.NoError(t, err)

	assert.Equal(t, "D1", r.DeviceID)
	assert.Equal(t, time.Unix(1760202000, 0).UTC(), r.Timestamp)
	assert.Equal(t, 50.0, r.Values[inventory.ParamTemperature])
	assert.Equal(t, 30.0, r.Values[inventory.ParamRadon])
	assert.Len(t, r.Values, 4)
}

func TestNormalize_Errors(t *testing.T) {
	_, err := Normalize("", airthings.Samples{"time": 1.0, "temp": 1.0}, inventory.Celsius)
	assert.ErrorIs(t, err, protocol.ErrMissingDeviceID)

	_, err = Normalize("D1", airthings.Samples{"temp": 1.0}, inventory.Celsius)
	assert.ErrorIs(t, err, protocol.ErrMissingTimestamp)

	_, err = Normalize("D1", airthings.Samples{"time": 1760202000.0, "rssi": -1.0}, inventory.Celsius)
	assert.ErrorIs(t, err, protocol.ErrNoParameters)

	_, err = Normalize("D1", airthings.Samples{"time": 1760202000.0, "temp": "warm"}, inventory.Celsius)
	assert.Error(t, err)
}

func TestConvertTemperature(t *testing.T) {
	assert.Equal(t, 21.3, ConvertTemperature(21.3, inventory.Celsius))
	assert.Equal(t, 70.34, ConvertTemperature(21.3, inventory.Fahrenheit))
	assert.Equal(t, 32.0, ConvertTemperature(0, inventory.Fahrenheit))
}

type fakeFetcher map[string]airthings.Samples

func (f fakeFetcher) LatestSamples(_ context.Context, serial string) (airthings.Samples, error) {
	s, ok := f[serial]
	if !ok {
		return nil, errors.New("502 Bad Gateway")
	}
	return s, nil
}

func testInventory(t *testing.T) *inventory.Inventory {
	inv, err := inventory.New(inventory.Celsius, nil, &inventory.House{
		ID: "h", Name: "Home",
		Rooms: []*inventory.Room{{
			ID: "r", Name: "Kitchen",
			Devices: []*inventory.Device{{Serial: "ok"}, {Serial: "down"}, {Serial: "junk"}},
		}},
	})
	require.NoError(t, err)
	return inv
}

func TestAPISource_FetchReadings(t *testing.T) {
	fetcher := fakeFetcher{
		"ok":   {"time": 1760202000.0, "battery": 15.0},
		"junk": {"battery": 15.0},
	}

	readings, problems, err := NewAPISource(fetcher, testInventory(t)).FetchReadings(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "ok", readings[0].DeviceID)

	require.Len(t, problems, 2)
	var fetchErr *FetchError
	require.True(t, errors.As(problems[0], &fetchErr))
	assert.Equal(t, "down", fetchErr.DeviceID)

	var valErr *ValidationError
	require.True(t, errors.As(problems[1], &valErr))
	assert.Equal(t, "junk", valErr.DeviceID)
}

func TestBatchSource(t *testing.T) {
	batch := `{"device_id":"D1","timestamp":"2026-10-11T17:00:00Z","parameters":{"battery":15}}
{"timestamp":"2026-10-11T17:00:00Z","parameters":{"battery":15}}
`
	path := filepath.Join(t.TempDir(), "batch.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o600))

	for _, src := range []*BatchSource{
		NewBatchSource(path, nil),
		NewBatchSource("-", strings.NewReader(batch)),
	} {
		readings, problems, err := src.FetchReadings(context.Background())
		require.NoError(t, err)
		assert.Len(t, readings, 1)
		require.Len(t, problems, 1)
		assert.ErrorIs(t, problems[0], protocol.ErrMissingDeviceID)
	}

	_, _, err := NewBatchSource(filepath.Join(t.TempDir(), "missing"), nil).FetchReadings(context.Background())
	assert.Error(t, err)
}
