// Package schedule parses the small cron grammar used to time the deals job.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed job schedule. All times are UTC.
//
// Either Every is set (fixed interval) or Hour/Minute with an optional
// Weekday describe a wall-clock slot.
type Schedule struct {
	Hour    int
	Minute  int
	Weekday *time.Weekday // nil = every day
	Every   time.Duration // > 0 = fixed interval, slot fields ignored
}

// Parse accepts:
//   - "daily"             every day at 00:00
//   - "weekly"            every Monday at 00:00
//   - "HH:MM"             every day at HH:MM
//   - "daily:HH:MM"       every day at HH:MM
//   - "weekly:Day"        every Day at 00:00 (e.g. "weekly:Fri")
//   - "weekly:Day:HH:MM"  every Day at HH:MM
//   - "every:<duration>"  fixed interval, minimum one minute (e.g. "every:6h")
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("empty schedule expression")
	}

	switch {
	case expr == "daily":
		return Schedule{}, nil

	case expr == "weekly":
		return weekly(time.Monday, 0, 0), nil

	case strings.HasPrefix(expr, "every:"):
		d, err := time.ParseDuration(strings.TrimPrefix(expr, "every:"))
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid interval in %q: %w", expr, err)
		}
		if d < time.Minute {
			return Schedule{}, fmt.Errorf("interval %s is below one minute", d)
		}
		return Schedule{Every: d}, nil

	case strings.HasPrefix(expr, "daily:"):
		h, m, err := parseClock(strings.TrimPrefix(expr, "daily:"))
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Hour: h, Minute: m}, nil

	case strings.HasPrefix(expr, "weekly:"):
		day, clock, hasClock := strings.Cut(strings.TrimPrefix(expr, "weekly:"), ":")
		wd, err := parseWeekday(day)
		if err != nil {
			return Schedule{}, err
		}
		h, m := 0, 0
		if hasClock {
			if h, m, err = parseClock(clock); err != nil {
				return Schedule{}, err
			}
		}
		return weekly(wd, h, m), nil

	default:
		h, m, err := parseClock(expr)
		if err != nil {
			return Schedule{}, fmt.Errorf("unrecognized schedule expression: %q", expr)
		}
		return Schedule{Hour: h, Minute: m}, nil
	}
}

// Validate reports whether expr parses.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// NextAfter returns the first occurrence strictly after t.
func (s Schedule) NextAfter(t time.Time) time.Time {
	t = t.UTC()
	if s.Every > 0 {
		return t.Add(s.Every)
	}

	slot := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
	if s.Weekday == nil {
		if !slot.After(t) {
			slot = slot.AddDate(0, 0, 1)
		}
		return slot
	}

	for i := range 8 {
		c := slot.AddDate(0, 0, i)
		if c.Weekday() == *s.Weekday && c.After(t) {
			return c
		}
	}
	return slot.AddDate(0, 0, 7)
}

// Due reports whether a run is owed at now given the start of the last run.
func (s Schedule) Due(lastRun, now time.Time) bool {
	return !s.NextAfter(lastRun).After(now)
}

func weekly(d time.Weekday, h, m int) Schedule {
	return Schedule{Hour: h, Minute: m, Weekday: &d}
}

func parseClock(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", hh)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute %q", mm)
	}
	return hour, minute, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return wd, nil
}
