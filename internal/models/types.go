package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	civilDateLayout = "2006-01-02"
	timeOfDayLayout = "15:04:05"
)

// CivilDate is a calendar day without a clock or zone. It is stored as an SQL DATE.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// CivilDateOf returns the calendar day of t in t's location.
func CivilDateOf(t time.Time) CivilDate {
	y, m, d := t.Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

// ParseCivilDate parses s with the given time layout and keeps only the day.
func ParseCivilDate(layout, s string) (CivilDate, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return CivilDate{}, err
	}
	return CivilDateOf(t), nil
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d CivilDate) IsZero() bool { return d == CivilDate{} }

// Time returns midnight UTC of the day.
func (d CivilDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (CivilDate) GormDataType() string { return "date" }

func (d CivilDate) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *CivilDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = CivilDateOf(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	case nil:
		return fmt.Errorf("models: cannot scan NULL into CivilDate")
	default:
		return fmt.Errorf("models: cannot scan %T into CivilDate", src)
	}
}

func (d *CivilDate) scanString(s string) error {
	if len(s) > len(civilDateLayout) {
		s = s[:len(civilDateLayout)]
	}
	parsed, err := ParseCivilDate(civilDateLayout, s)
	if err != nil {
		return fmt.Errorf("models: scan CivilDate %q: %w", s, err)
	}
	*d = parsed
	return nil
}

func (d CivilDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *CivilDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseCivilDate(civilDateLayout, s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a wall clock time with minute precision. It is stored as an SQL TIME.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses s with the given layout, e.g. "15:4" for manifest values like "3:07".
func ParseTimeOfDay(layout, s string) (TimeOfDay, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (TimeOfDay) GormDataType() string { return "time" }

func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute), nil
}

func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDay{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	case nil:
		return fmt.Errorf("models: cannot scan NULL into TimeOfDay")
	default:
		return fmt.Errorf("models: cannot scan %T into TimeOfDay", src)
	}
}

func (t *TimeOfDay) scanString(s string) error {
	// postgres may append fractional seconds
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	layout := timeOfDayLayout
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	parsed, err := ParseTimeOfDay(layout, s)
	if err != nil {
		return fmt.Errorf("models: scan TimeOfDay %q: %w", s, err)
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.scanString(s)
}
