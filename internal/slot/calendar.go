package slot

import (
	"errors"
	"fmt"
	"time"
)

// Width is the length of one slot.
const Width = 10 * time.Minute

const (
	idLayout  = "2006-01-02_15-04"
	dayLayout = "2006-01-02"
)

// DefaultOffset is India Standard Time, the zone every slot and calendar day is cut in
// unless configured otherwise.
const DefaultOffset = 5*time.Hour + 30*time.Minute

// ErrInvalidSlotID is returned for strings that are not canonical slot ids.
var ErrInvalidSlotID = errors.New("invalid slot id")

// Calendar buckets instants into slots and calendar days in one fixed zone.
// The zero value uses UTC.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar pinned to a fixed UTC offset.
func NewCalendar(offset time.Duration) Calendar {
	return Calendar{loc: time.FixedZone(offsetName(offset), int(offset/time.Second))}
}

// Default returns the IST calendar.
func Default() Calendar {
	return NewCalendar(DefaultOffset)
}

func offsetName(offset time.Duration) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%s%02d:%02d", sign, h, m)
}

// Location returns the zone slots are cut in.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Start returns the beginning of the slot containing t.
func (c Calendar) Start(t time.Time) time.Time {
	lt := t.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute()/10*10, 0, 0, c.Location())
}

// ID returns the canonical id of the slot containing t, e.g. "2024-03-15_14-30".
// Ids sort lexically in chronological order.
func (c Calendar) ID(t time.Time) string {
	return c.Start(t).Format(idLayout)
}

// IDFor normalizes ts and returns its slot id.
func (c Calendar) IDFor(ts Timestamp) (string, error) {
	t, err := Normalize(ts)
	if err != nil {
		return "", err
	}
	// The zone offset can still push the last hours of 9999 into a fifth year digit.
	if start := c.Start(t); start.Year() > 9999 {
		return "", ErrInvalidTimestamp
	}
	return c.ID(t), nil
}

// Parse returns the start of the slot named by id.
func (c Calendar) Parse(id string) (time.Time, error) {
	t, err := time.ParseInLocation(idLayout, id, c.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSlotID, id)
	}
	if t.Minute()%10 != 0 || t.Format(idLayout) != id {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSlotID, id)
	}
	return t, nil
}

// Window returns the half-open interval [start, end) covered by id.
func (c Calendar) Window(id string) (time.Time, time.Time, error) {
	start, err := c.Parse(id)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(Width), nil
}

// Day returns the calendar day of t as "YYYY-MM-DD".
func (c Calendar) Day(t time.Time) string {
	return t.In(c.Location()).Format(dayLayout)
}

// DayBounds returns [start, end) of the calendar day named "YYYY-MM-DD".
func (c Calendar) DayBounds(day string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dayLayout, day, c.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: day %q", ErrInvalidTimestamp, day)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// DaysBetween counts calendar-day boundaries crossed going from a to b.
// Negative when b falls on an earlier day than a.
func (c Calendar) DaysBetween(a, b time.Time) int {
	da := c.midnightUTC(a)
	db := c.midnightUTC(b)
	return int(db.Sub(da) / (24 * time.Hour))
}

func (c Calendar) midnightUTC(t time.Time) time.Time {
	lt := t.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}
