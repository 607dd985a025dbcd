package inventory

import (
	"encoding/json"
	"fmt"
	"sort"
)

// legacyDocument is the inventory.json written by the original setup wizard:
// house name -> room name -> serial (or {"id", "type"}), with one Fahrenheit
// temperature floor and one battery floor for every device.
type legacyDocument struct {
	Inventory        map[string]map[string]json.RawMessage `json:"inventory"`
	FTempThreshold   *float64                              `json:"f_temp_threshold"`
	BatteryThreshold *float64                              `json:"battery_threshold"`
	NtfyURL          string                                `json:"ntfy_url"`
}

type legacyDevice struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func parseLegacy(data []byte) (*Inventory, error) {
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid legacy inventory: %w", err)
	}

	inv := &Inventory{
		TemperatureUnit: Fahrenheit,
		Defaults:        Thresholds{},
		NtfyTopic:       doc.NtfyURL,
	}
	if doc.FTempThreshold != nil {
		inv.Defaults[ParamTemperature] = Threshold{Op: OpLessOrEqual, Limit: *doc.FTempThreshold}
	}
	if doc.BatteryThreshold != nil {
		inv.Defaults[ParamBattery] = Threshold{Op: OpLess, Limit: *doc.BatteryThreshold}
	}

	houseNames := make([]string, 0, len(doc.Inventory))
	for name := range doc.Inventory {
		houseNames = append(houseNames, name)
	}
	sort.Strings(houseNames)

	for _, houseName := range houseNames {
		rooms := doc.Inventory[houseName]
		house := &House{ID: houseName, Name: houseName}

		roomNames := make([]string, 0, len(rooms))
		for name := range rooms {
			roomNames = append(roomNames, name)
		}
		sort.Strings(roomNames)

		for _, roomName := range roomNames {
			dev, err := decodeLegacyDevice(rooms[roomName])
			if err != nil {
				return nil, fmt.Errorf("legacy inventory %s/%s: %w", houseName, roomName, err)
			}
			house.Rooms = append(house.Rooms, &Room{
				ID:      roomName,
				Name:    roomName,
				Devices: []*Device{dev},
			})
		}
		inv.Houses = append(inv.Houses, house)
	}
	return inv, nil
}

func decodeLegacyDevice(raw json.RawMessage) (*Device, error) {
	var serial string
	if err := json.Unmarshal(raw, &serial); err == nil {
		return &Device{Serial: serial}, nil
	}
	var d legacyDevice
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("room entry must be a serial or {id, type}: %w", err)
	}
	return &Device{Serial: d.ID, Type: d.Type}, nil
}
