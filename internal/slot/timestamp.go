package slot

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a value cannot be read as an instant.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Timestamp is the closed set of time representations accepted from clients and
// stored documents: Seconds, Millis, ISOString or Instant.
type Timestamp interface {
	timestamp()
}

// Seconds is an epoch value in seconds, fractional part allowed.
type Seconds float64

// Millis is an epoch value in milliseconds.
type Millis int64

// ISOString is an RFC 3339 string. Date-only and zone-less forms are read as UTC.
type ISOString string

// Instant wraps an already parsed time.
type Instant time.Time

func (Seconds) timestamp()   {}
func (Millis) timestamp()    {}
func (ISOString) timestamp() {}
func (Instant) timestamp()   {}

// maxUnix is the last second of year 9999, the largest instant a slot id can name.
var maxUnix = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix()

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize converts any Timestamp variant into a time.Time. Zero, negative and
// non-finite epochs are rejected, as are instants past year 9999 and unparsable strings.
func Normalize(ts Timestamp) (time.Time, error) {
	switch v := ts.(type) {
	case Seconds:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f > float64(maxUnix) {
			return time.Time{}, ErrInvalidTimestamp
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
	case Millis:
		if v <= 0 || int64(v) > maxUnix*1000+999 {
			return time.Time{}, ErrInvalidTimestamp
		}
		return time.UnixMilli(int64(v)), nil
	case ISOString:
		raw := strings.TrimSpace(string(v))
		if raw == "" {
			return time.Time{}, ErrInvalidTimestamp
		}
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return inRange(t)
			}
		}
		return time.Time{}, ErrInvalidTimestamp
	case Instant:
		t := time.Time(v)
		if t.IsZero() {
			return time.Time{}, ErrInvalidTimestamp
		}
		return inRange(t)
	default:
		return time.Time{}, ErrInvalidTimestamp
	}
}

func inRange(t time.Time) (time.Time, error) {
	if y := t.UTC().Year(); y < 1 || y > 9999 {
		return time.Time{}, ErrInvalidTimestamp
	}
	return t, nil
}
