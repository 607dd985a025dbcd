package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/alarming"
)

// StateVersion is bumped when the persisted layout changes incompatibly.
const StateVersion = 1

var ErrCorruptState = errors.New("persisted state is corrupt")

// State is everything carried from one cycle to the next.
type State struct {
	Version   int                                       `json:"version"`
	Alerts    map[alarming.AlertKey]alarming.AlertState `json:"alerts"`
	LastSeen  map[string]time.Time                      `json:"last_seen"`
	Digest    aggregation.Window                        `json:"digest"`
	UpdatedAt time.Time                                 `json:"updated_at,omitempty"`
}

// NewState returns an empty state.
func NewState() State {
	return State{
		Version:  StateVersion,
		Alerts:   map[alarming.AlertKey]alarming.AlertState{},
		LastSeen: map[string]time.Time{},
	}
}

// Clone returns a deep copy with non-nil maps.
func (s State) Clone() State {
	cp := NewState()
	cp.UpdatedAt = s.UpdatedAt
	for k, v := range s.Alerts {
		cp.Alerts[k] = v
	}
	for k, v := range s.LastSeen {
		cp.LastSeen[k] = v
	}
	cp.Digest = s.Digest.Clone()
	return cp
}

// EncodeState serializes a state document.
func EncodeState(s State) ([]byte, error) {
	s.Version = StateVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

// DecodeState parses a state document. Any failure wraps ErrCorruptState.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if s.Version > StateVersion {
		return State{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, s.Version)
	}
	for k := range s.Alerts {
		if err := k.Validate(); err != nil {
			return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
	}
	return s.Clone(), nil
}
