// Package dateonly provides a calendar-date value type with no
// time-of-day or timezone component. All dates are pinned to midnight
// UTC so that day arithmetic never shifts across a local-midnight
// boundary.
package dateonly

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const layout = "2006-01-02"

const dayMillis = 86400000 * time.Millisecond

// Date is a calendar date. The zero value is usable and reports IsZero.
type Date struct {
	t time.Time
}

// New builds a Date from a year, month and day.
func New(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Parse reads a YYYY-MM-DD string. Longer inputs (full timestamps) are
// truncated to their date part first. A malformed string is an error,
// never a silent default, since a wrong date corrupts interest math.
func Parse(s string) (Date, error) {
	if len(s) > len(layout) {
		s = s[:len(layout)]
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// FromTime truncates a timestamp to its UTC calendar date.
func FromTime(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return New(y, m, d)
}

// Today returns the current UTC calendar date.
func Today() Date {
	return FromTime(time.Now())
}

// AddDays shifts the date by exactly n whole days.
func (d Date) AddDays(n int) Date {
	return Date{d.t.Add(time.Duration(n) * dayMillis)}
}

// Sub returns the number of whole days between d and other (d - other).
func (d Date) Sub(other Date) int {
	return int(d.t.Sub(other.t) / dayMillis)
}

// String returns the canonical YYYY-MM-DD form.
func (d Date) String() string {
	return d.t.Format(layout)
}

func (d Date) IsZero() bool {
	return d.t.IsZero()
}

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Time exposes the underlying instant (midnight UTC).
func (d Date) Time() time.Time {
	return d.t
}

// MarshalJSON encodes the date as a "YYYY-MM-DD" JSON string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes from a "YYYY-MM-DD" (or ISO timestamp) string.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		*d = Date{}
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", b)
	}
	parsed, err := Parse(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as its ISO string.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan reads the date back from TEXT or DATETIME columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case time.Time:
		*d = FromTime(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into dateonly.Date", src)
	}
}
