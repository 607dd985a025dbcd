package aggregation

import (
	"fmt"
	"strings"
	"time"
)

// Schedule is a weekly slot: a weekday and a local time of day.
type Schedule struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// DefaultSchedule is Sunday 17:00 in the local timezone.
func DefaultSchedule() Schedule {
	return Schedule{Weekday: time.Sunday, Hour: 17, Location: time.Local}
}

// ParseSchedule parses a weekday name ("sunday", "Sun") and a time of day
// in HH:MM format.
func ParseSchedule(weekday, timeOfDay string, loc *time.Location) (Schedule, error) {
	wd, err := parseWeekday(weekday)
	if err != nil {
		return Schedule{}, err
	}

	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return Schedule{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Schedule{}, fmt.Errorf("invalid time of day: %s", timeOfDay)
	}

	if loc == nil {
		loc = time.Local
	}
	return Schedule{Weekday: wd, Hour: hour, Minute: minute, Location: loc}, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday: %q", s)
}

// Next returns the first scheduled boundary strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)

	days := (int(s.Weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, s.Hour, s.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(next.Year(), next.Month(), next.Day()+7, s.Hour, s.Minute, 0, 0, loc)
	}
	return next
}

func (s Schedule) String() string {
	return fmt.Sprintf("%s %02d:%02d", s.Weekday, s.Hour, s.Minute)
}
