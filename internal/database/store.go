package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/smukkama/home-monitor/internal/aggregation"
	"github.com/smukkama/home-monitor/internal/alarming"
	"github.com/smukkama/home-monitor/internal/inventory"
	"github.com/smukkama/home-monitor/internal/monitor"
)

// PostgresStore keeps monitor state in the alert_state, device_last_seen
// and digest_window tables.
type PostgresStore struct {
	db *DB
}

func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load reads the full state. An empty database is an empty state.
func (s *PostgresStore) Load(ctx context.Context) (monitor.State, error) {
	st := monitor.NewState()

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, parameter, status, since, last_notified_at, last_value, normal_streak
		FROM alert_state
		ORDER BY device_id, parameter
	`)
	if err != nil {
		return monitor.State{}, fmt.Errorf("failed to query alert state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r AlertStateRow
		if err := rows.Scan(&r.DeviceID, &r.Parameter, &r.Status, &r.Since, &r.LastNotifiedAt, &r.LastValue, &r.NormalStreak); err != nil {
			return monitor.State{}, fmt.Errorf("failed to scan alert state: %w", err)
		}
		key := alarming.AlertKey{DeviceID: r.DeviceID, Parameter: inventory.Parameter(r.Parameter)}
		if err := key.Validate(); err != nil {
			return monitor.State{}, fmt.Errorf("%w: %v", monitor.ErrCorruptState, err)
		}
		st.Alerts[key] = alarming.AlertState{
			Status:         r.Status,
			Since:          r.Since,
			LastNotifiedAt: r.LastNotifiedAt,
			LastValue:      r.LastValue,
			NormalStreak:   r.NormalStreak,
		}
	}
	if err := rows.Err(); err != nil {
		return monitor.State{}, fmt.Errorf("failed to read alert state: %w", err)
	}

	seenRows, err := s.db.QueryContext(ctx, `SELECT device_id, last_seen FROM device_last_seen`)
	if err != nil {
		return monitor.State{}, fmt.Errorf("failed to query last seen: %w", err)
	}
	defer seenRows.Close()

	for seenRows.Next() {
		var id string
		var seen sql.NullTime
		if err := seenRows.Scan(&id, &seen); err != nil {
			return monitor.State{}, fmt.Errorf("failed to scan last seen: %w", err)
		}
		if seen.Valid {
			st.LastSeen[id] = seen.Time
		}
	}
	if err := seenRows.Err(); err != nil {
		return monitor.State{}, fmt.Errorf("failed to read last seen: %w", err)
	}

	var w DigestWindowRow
	err = s.db.QueryRowContext(ctx, `SELECT started_at, next_due, devices FROM digest_window WHERE id = 1`).
		Scan(&w.StartedAt, &w.NextDue, &w.Devices)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return monitor.State{}, fmt.Errorf("failed to query digest window: %w", err)
	}

	window := aggregation.Window{StartedAt: w.StartedAt.Time, NextDue: w.NextDue.Time}
	if len(w.Devices) > 0 {
		if err := json.Unmarshal(w.Devices, &window.Devices); err != nil {
			return monitor.State{}, fmt.Errorf("%w: digest devices: %v", monitor.ErrCorruptState, err)
		}
	}
	st.Digest = window
	return st, nil
}

// Save replaces the stored state in one transaction.
func (s *PostgresStore) Save(ctx context.Context, st monitor.State) error {
	devices, err := json.Marshal(st.Digest.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal digest devices: %w", err)
	}
	if st.Digest.Devices == nil {
		devices = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_state`); err != nil {
		return fmt.Errorf("failed to clear alert state: %w", err)
	}

	keys := make([]alarming.AlertKey, 0, len(st.Alerts))
	for k := range st.Alerts {
		keys = append(keys, k)
	}
	alarming.SortKeys(keys)
	for _, k := range keys {
		a := st.Alerts[k]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO alert_state (device_id, parameter, status, since, last_notified_at, last_value, normal_streak)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, k.DeviceID, string(k.Parameter), a.Status, a.Since, a.LastNotifiedAt, a.LastValue, a.NormalStreak)
		if err != nil {
			return fmt.Errorf("failed to insert alert state %s: %w", k, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_last_seen`); err != nil {
		return fmt.Errorf("failed to clear last seen: %w", err)
	}

	ids := make([]string, 0, len(st.LastSeen))
	for id := range st.LastSeen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `INSERT INTO device_last_seen (device_id, last_seen) VALUES ($1, $2)`, id, st.LastSeen[id])
		if err != nil {
			return fmt.Errorf("failed to insert last seen %s: %w", id, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO digest_window (id, started_at, next_due, devices)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET started_at = EXCLUDED.started_at,
		    next_due = EXCLUDED.next_due,
		    devices = EXCLUDED.devices,
		    updated_at = CURRENT_TIMESTAMP
	`, nullTime(st.Digest.StartedAt), nullTime(st.Digest.NextDue), devices)
	if err != nil {
		return fmt.Errorf("failed to upsert digest window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// RecordEvents appends notified events to alert_events.
func (s *PostgresStore) RecordEvents(ctx context.Context, events []alarming.Event) error {
	for _, e := range events {
		var value *float64
		if !e.Stale() {
			v := e.Value
			value = &v
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO alert_events (device_id, parameter, kind, value, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.DeviceID, string(e.Parameter), string(e.Kind), value, e.At)
		if err != nil {
			return fmt.Errorf("failed to insert alert event: %w", err)
		}
	}
	return nil
}
