package alarming

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
)

// ParamStaleness is the pseudo-parameter staleness alerts are tracked under.
const ParamStaleness inventory.Parameter = "staleness"

// Alert status values.
const (
	StatusClear      = "CLEAR"
	StatusAlerting   = "ALERTING"
	StatusRecovering = "RECOVERING"
)

var ErrInvalidVerdict = errors.New("verdict is missing device or parameter")

// AlertKey identifies one tracked condition.
type AlertKey struct {
	DeviceID  string
	Parameter inventory.Parameter
}

func (k AlertKey) String() string {
	return k.DeviceID + ":" + string(k.Parameter)
}

// Validate rejects keys with an empty component.
func (k AlertKey) Validate() error {
	if k.DeviceID == "" || k.Parameter == "" {
		return fmt.Errorf("%w: %q", ErrInvalidVerdict, k.String())
	}
	return nil
}

// MarshalText lets AlertKey be used as a JSON object key.
func (k AlertKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *AlertKey) UnmarshalText(b []byte) error {
	s := string(b)
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return fmt.Errorf("malformed alert key %q", s)
	}
	k.DeviceID = s[:i]
	k.Parameter = inventory.Parameter(s[i+1:])
	return nil
}

// AlertState is what is remembered about a condition between cycles. A
// missing state is equivalent to StatusClear.
type AlertState struct {
	Status         string    `json:"status"`
	Since          time.Time `json:"since"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
	LastValue      float64   `json:"last_value"`
	NormalStreak   int       `json:"normal_streak,omitempty"`
}

// Active is true while the condition has not been declared recovered.
func (s AlertState) Active() bool {
	return s.Status == StatusAlerting || s.Status == StatusRecovering
}
