package alarming

import "time"

// StalenessVerdict reports whether a device has gone quiet.
type StalenessVerdict struct {
	DeviceID string
	LastSeen time.Time
	Window   time.Duration
	Stale    bool
}

// CheckStaleness flags a device whose last reading is older than window.
// A device that has never reported (zero lastSeen) is stale.
func CheckStaleness(deviceID string, lastSeen, now time.Time, window time.Duration) StalenessVerdict {
	v := StalenessVerdict{DeviceID: deviceID, LastSeen: lastSeen, Window: window}
	if lastSeen.IsZero() {
		v.Stale = true
		return v
	}
	v.Stale = now.Sub(lastSeen) > window
	return v
}
