package clock

import (
	"fmt"
	"time"
)

const (
	timestampLayout = "2006-01-02T15:04:05Z"
	dayLayout       = "2006-01-02"
)

func Now() string {
	return Format(time.Now())
}

// Format renders t the same way Now does; zero time gives an empty string.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// DayResolver maps timestamps to scan days in a fixed zone, so resets
// do not depend on the server locale.
type DayResolver struct {
	loc *time.Location
}

func NewDayResolver(offsetMinutes int) DayResolver {
	sign := '+'
	if offsetMinutes < 0 {
		sign = '-'
	}
	m := abs(offsetMinutes)
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, m/60, m%60)
	return DayResolver{loc: time.FixedZone(name, offsetMinutes*60)}
}

// DayOf returns the YYYY-MM-DD scan day that contains t.
func (d DayResolver) DayOf(t time.Time) string {
	return t.In(d.location()).Format(dayLayout)
}

// NextReset returns the instant the scan day following t begins.
func (d DayResolver) NextReset(t time.Time) time.Time {
	local := t.In(d.location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.location())
	return midnight.AddDate(0, 0, 1)
}

// DayStart returns the instant the scan day containing t began.
func (d DayResolver) DayStart(t time.Time) time.Time {
	return d.NextReset(t).AddDate(0, 0, -1)
}

func (d DayResolver) Location() *time.Location {
	return d.location()
}

func (d DayResolver) location() *time.Location {
	if d.loc == nil {
		return time.UTC
	}
	return d.loc
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
