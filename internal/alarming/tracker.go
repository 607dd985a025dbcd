package alarming

import (
	"sort"
	"time"

	"github.com/smukkama/home-monitor/internal/inventory"
)

// RecoveryPolicy controls recovery notifications. AfterCycles is the number
// of consecutive normal observations required before a condition counts as
// recovered; values below 1 are treated as 1.
type RecoveryPolicy struct {
	Notify      bool
	AfterCycles int
}

// Policy configures the tracker. A zero ReminderInterval disables reminders.
type Policy struct {
	ReminderInterval time.Duration
	Recovery         RecoveryPolicy
}

// DefaultPolicy re-reminds daily and notifies on the first normal cycle.
func DefaultPolicy() Policy {
	return Policy{
		ReminderInterval: 24 * time.Hour,
		Recovery:         RecoveryPolicy{Notify: true, AfterCycles: 1},
	}
}

// EventKind classifies tracker output.
type EventKind string

const (
	EventAlert     EventKind = "alert"
	EventReminder  EventKind = "reminder"
	EventRecovered EventKind = "recovered"
)

// Event is a state transition worth notifying about.
type Event struct {
	Kind      EventKind
	DeviceID  string
	Parameter inventory.Parameter
	Value     float64
	Threshold inventory.Threshold
	Since     time.Time
	LastSeen  time.Time
	Window    time.Duration
	At        time.Time
}

// Stale reports whether the event concerns device staleness.
func (e Event) Stale() bool {
	return e.Parameter == ParamStaleness
}

// Observation is a verdict reduced to what the tracker needs.
type Observation struct {
	Key       AlertKey
	Active    bool
	Value     float64
	Threshold inventory.Threshold
	LastSeen  time.Time
	Window    time.Duration
}

// FromBreach converts a threshold verdict.
func FromBreach(v BreachVerdict) Observation {
	return Observation{
		Key:       AlertKey{DeviceID: v.DeviceID, Parameter: v.Parameter},
		Active:    v.Breached,
		Value:     v.Value,
		Threshold: v.Threshold,
		LastSeen:  v.Timestamp,
	}
}

// FromStaleness converts a staleness verdict.
func FromStaleness(v StalenessVerdict) Observation {
	return Observation{
		Key:      AlertKey{DeviceID: v.DeviceID, Parameter: ParamStaleness},
		Active:   v.Stale,
		LastSeen: v.LastSeen,
		Window:   v.Window,
	}
}

// Tracker applies observations to a private copy of the alert states it
// was created with.
type Tracker struct {
	policy Policy
	states map[AlertKey]AlertState
}

// NewTracker copies prior so the caller's map is never modified.
func NewTracker(policy Policy, prior map[AlertKey]AlertState) *Tracker {
	states := make(map[AlertKey]AlertState, len(prior))
	for k, s := range prior {
		if s.Active() {
			states[k] = s
		}
	}
	return &Tracker{policy: policy, states: states}
}

// Observe records one observation at now and returns the event it causes,
// if any.
func (t *Tracker) Observe(now time.Time, obs Observation) (*Event, error) {
	if err := obs.Key.Validate(); err != nil {
		return nil, err
	}

	state := t.states[obs.Key]
	if obs.Active {
		return t.handleActive(now, obs, state), nil
	}
	return t.handleNormal(now, obs, state), nil
}

func (t *Tracker) handleActive(now time.Time, obs Observation, state AlertState) *Event {
	switch state.Status {
	case StatusAlerting, StatusRecovering:
		// Still breached: the alert already went out.
		state.Status = StatusAlerting
		state.NormalStreak = 0
		state.LastValue = obs.Value

		var ev *Event
		if t.policy.ReminderInterval > 0 && now.Sub(state.LastNotifiedAt) >= t.policy.ReminderInterval {
			state.LastNotifiedAt = now
			ev = newEvent(EventReminder, now, obs, state)
		}
		t.states[obs.Key] = state
		return ev

	default:
		state = AlertState{
			Status:         StatusAlerting,
			Since:          now,
			LastNotifiedAt: now,
			LastValue:      obs.Value,
		}
		t.states[obs.Key] = state
		return newEvent(EventAlert, now, obs, state)
	}
}

func (t *Tracker) handleNormal(now time.Time, obs Observation, state AlertState) *Event {
	if !state.Active() {
		return nil
	}

	state.NormalStreak++
	required := t.policy.Recovery.AfterCycles
	if required < 1 {
		required = 1
	}
	if state.NormalStreak < required {
		state.Status = StatusRecovering
		t.states[obs.Key] = state
		return nil
	}

	delete(t.states, obs.Key)
	if !t.policy.Recovery.Notify {
		return nil
	}
	return newEvent(EventRecovered, now, obs, state)
}

func newEvent(kind EventKind, now time.Time, obs Observation, state AlertState) *Event {
	return &Event{
		Kind:      kind,
		DeviceID:  obs.Key.DeviceID,
		Parameter: obs.Key.Parameter,
		Value:     obs.Value,
		Threshold: obs.Threshold,
		Since:     state.Since,
		LastSeen:  obs.LastSeen,
		Window:    obs.Window,
		At:        now,
	}
}

// Forget drops every state for which keep returns false.
func (t *Tracker) Forget(keep func(AlertKey) bool) {
	for k := range t.states {
		if !keep(k) {
			delete(t.states, k)
		}
	}
}

// States returns a copy of the current active states.
func (t *Tracker) States() map[AlertKey]AlertState {
	out := make(map[AlertKey]AlertState, len(t.states))
	for k, s := range t.states {
		out[k] = s
	}
	return out
}

// SortKeys orders keys by device, then parameter display order with
// staleness last.
func SortKeys(keys []AlertKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DeviceID != keys[j].DeviceID {
			return keys[i].DeviceID < keys[j].DeviceID
		}
		ri, rj := keys[i].Parameter.Rank(), keys[j].Parameter.Rank()
		if ri != rj {
			return ri < rj
		}
		return keys[i].Parameter < keys[j].Parameter
	})
}
