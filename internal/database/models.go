package database

import (
	"database/sql"
	"time"
)

// AlertStateRow is one row of alert_state.
type AlertStateRow struct {
	DeviceID       string
	Parameter      string
	Status         string
	Since          time.Time
	LastNotifiedAt time.Time
	LastValue      float64
	NormalStreak   int
}

// DigestWindowRow is the single row of digest_window. Devices is the JSON
// encoded per-device tally.
type DigestWindowRow struct {
	StartedAt sql.NullTime
	NextDue   sql.NullTime
	Devices   []byte
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
