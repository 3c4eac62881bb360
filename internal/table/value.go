package table

import (
	"fmt"
	"strconv"
	"time"
)

// Value is a single attribute cell. The concrete type is one of Text,
// Integer, Real, Bool, Date or Null.
type Value interface {
	isValue()
	String() string
}

// Text is an untyped string cell.
type Text string

// Integer is an integral numeric cell.
type Integer int64

// Real is a floating point numeric cell.
type Real float64

// Bool is a boolean cell.
type Bool bool

// Date is a calendar date without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Null is an empty cell.
type Null struct{}

func (Text) isValue()    {}
func (Integer) isValue() {}
func (Real) isValue()    {}
func (Bool) isValue()    {}
func (Date) isValue()    {}
func (Null) isValue()    {}

func (v Text) String() string    { return string(v) }
func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }
func (v Real) String() string    { return strconv.FormatFloat(float64(v), 'f', -1, 64) }
func (v Bool) String() string    { return strconv.FormatBool(bool(v)) }
func (Null) String() string      { return "" }

// String renders the date as ISO 8601 (YYYY-MM-DD).
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// NewDate builds a Date from its parts.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
