// Package inventory describes the monitored houses, rooms and devices and
// the thresholds each device is evaluated against.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

var ErrUnknownDevice = errors.New("device not in inventory")

// TemperatureUnit is the unit temperatures are evaluated and displayed in.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

// Unit returns the display suffix for p.
func (p Parameter) Unit(temp TemperatureUnit) string {
	if p == ParamTemperature {
		if temp == Fahrenheit {
			return "°F"
		}
		return "°C"
	}
	return parameters[p].unit
}

// Duration is a time.Duration that decodes from strings like "3h".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	if d == 0 {
		return json.Marshal("")
	}
	return json.Marshal(time.Duration(d).String())
}

// House is a monitored location.
type House struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Rooms []*Room `json:"rooms"`
}

// Room belongs to exactly one House.
type Room struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Devices []*Device `json:"devices"`

	House *House `json:"-"`
}

// Device is a single monitor, identified by its serial number.
type Device struct {
	Serial          string     `json:"serial"`
	Type            string     `json:"type,omitempty"`
	Thresholds      Thresholds `json:"thresholds,omitempty"`
	FreshnessWindow Duration   `json:"freshness_window,omitempty"`

	Room *Room `json:"-"`
}

// Location renders "House Room" the way notifications name a device.
func (d *Device) Location() string {
	if d.Room == nil || d.Room.House == nil {
		return d.Serial
	}
	return d.Room.House.Name + " " + d.Room.Name
}

// Inventory is the full device hierarchy plus evaluation defaults.
type Inventory struct {
	TemperatureUnit TemperatureUnit `json:"temperature_unit"`
	Defaults        Thresholds      `json:"defaults,omitempty"`
	FreshnessWindow Duration        `json:"freshness_window,omitempty"`
	Houses          []*House        `json:"houses"`

	// NtfyTopic is carried over from legacy inventory files.
	NtfyTopic string `json:"-"`

	devices map[string]*Device
	invalid map[string]error
	ordered []*Device
}

// DeviceError is a configuration problem scoped to one device.
type DeviceError struct {
	Serial string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %q: %v", e.Serial, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Load reads an inventory document from disk.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return Parse(data)
}

// Parse decodes either the native or the legacy inventory format.
func Parse(data []byte) (*Inventory, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid inventory JSON: %w", err)
	}

	var inv *Inventory
	if _, legacy := probe["inventory"]; legacy {
		var err error
		inv, err = parseLegacy(data)
		if err != nil {
			return nil, err
		}
	} else {
		inv = &Inventory{}
		if err := json.Unmarshal(data, inv); err != nil {
			return nil, fmt.Errorf("invalid inventory: %w", err)
		}
	}

	if err := inv.build(); err != nil {
		return nil, err
	}
	return inv, nil
}

// New builds an inventory from already constructed houses.
func New(unit TemperatureUnit, defaults Thresholds, houses ...*House) (*Inventory, error) {
	inv := &Inventory{TemperatureUnit: unit, Defaults: defaults, Houses: houses}
	if err := inv.build(); err != nil {
		return nil, err
	}
	return inv, nil
}

// build links back-references, indexes devices and records per-device
// configuration errors. Document-level problems are returned.
func (inv *Inventory) build() error {
	switch inv.TemperatureUnit {
	case "":
		inv.TemperatureUnit = Celsius
	case Celsius, Fahrenheit:
	default:
		return fmt.Errorf("invalid temperature_unit %q", inv.TemperatureUnit)
	}
	if err := inv.Defaults.Validate(); err != nil {
		return fmt.Errorf("invalid defaults: %w", err)
	}
	if inv.FreshnessWindow < 0 {
		return fmt.Errorf("freshness_window must not be negative")
	}

	inv.devices = make(map[string]*Device)
	inv.invalid = make(map[string]error)
	inv.ordered = nil

	houseIDs := make(map[string]bool)
	for hi, h := range inv.Houses {
		if h == nil {
			return fmt.Errorf("house %d is null", hi)
		}
		if h.ID == "" {
			h.ID = h.Name
		}
		if h.ID == "" {
			return fmt.Errorf("house %d has no id or name", hi)
		}
		if houseIDs[h.ID] {
			return fmt.Errorf("duplicate house id %q", h.ID)
		}
		houseIDs[h.ID] = true
		if h.Name == "" {
			h.Name = h.ID
		}

		for ri, r := range h.Rooms {
			if r == nil {
				return fmt.Errorf("house %q: room %d is null", h.ID, ri)
			}
			if r.ID == "" {
				r.ID = r.Name
			}
			if r.Name == "" {
				r.Name = r.ID
			}
			r.House = h

			for _, d := range r.Devices {
				if d == nil {
					continue
				}
				d.Room = r
				inv.index(d)
			}
		}
	}
	return nil
}

func (inv *Inventory) index(d *Device) {
	if d.Serial == "" {
		// Unkeyed devices cannot be matched to readings; remember them under
		// their location so the problem is still reported.
		inv.invalid[d.Location()] = errors.New("missing serial number")
		return
	}
	if _, dup := inv.devices[d.Serial]; dup {
		inv.invalid[d.Serial] = fmt.Errorf("serial listed more than once")
		return
	}
	inv.devices[d.Serial] = d
	inv.ordered = append(inv.ordered, d)

	if err := d.Thresholds.Validate(); err != nil {
		inv.invalid[d.Serial] = err
		return
	}
	if d.FreshnessWindow < 0 {
		inv.invalid[d.Serial] = errors.New("freshness_window must not be negative")
	}
}

// Device resolves a serial to a usable device. It returns ErrUnknownDevice
// for serials not in the inventory and a *DeviceError for misconfigured ones.
func (inv *Inventory) Device(serial string) (*Device, error) {
	if err, bad := inv.invalid[serial]; bad {
		return nil, &DeviceError{Serial: serial, Err: err}
	}
	d, ok := inv.devices[serial]
	if !ok {
		return nil, &DeviceError{Serial: serial, Err: ErrUnknownDevice}
	}
	return d, nil
}

// Devices returns every correctly configured device in document order.
func (inv *Inventory) Devices() []*Device {
	out := make([]*Device, 0, len(inv.ordered))
	for _, d := range inv.ordered {
		if _, bad := inv.invalid[d.Serial]; !bad {
			out = append(out, d)
		}
	}
	return out
}

// Problems lists per-device configuration errors, sorted by serial.
func (inv *Inventory) Problems() []*DeviceError {
	keys := make([]string, 0, len(inv.invalid))
	for k := range inv.invalid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*DeviceError, 0, len(keys))
	for _, k := range keys {
		out = append(out, &DeviceError{Serial: k, Err: inv.invalid[k]})
	}
	return out
}

// ThresholdFor returns the effective threshold for a device parameter: the
// device's own entry, else the inventory default. ok is false when neither
// exists, which means the parameter never breaches.
func (inv *Inventory) ThresholdFor(d *Device, p Parameter) (Threshold, bool) {
	if d != nil {
		if t, ok := d.Thresholds[p]; ok {
			return t, true
		}
	}
	t, ok := inv.Defaults[p]
	return t, ok
}

// FreshnessFor returns the device's freshness window, the inventory's, or
// fallback, in that order of precedence.
func (inv *Inventory) FreshnessFor(d *Device, fallback time.Duration) time.Duration {
	if d != nil && d.FreshnessWindow > 0 {
		return time.Duration(d.FreshnessWindow)
	}
	if inv.FreshnessWindow > 0 {
		return time.Duration(inv.FreshnessWindow)
	}
	return fallback
}
