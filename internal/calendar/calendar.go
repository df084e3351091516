// Package calendar converts civil instants to and from the calendar used for
// membership arithmetic. Two systems are supported: the Gregorian calendar and
// the Ethiopian calendar (13 months, the last one being the 5 or 6 day Pagume).
//
// Nothing in this package reads the wall clock; every operation is a pure
// function of its arguments.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a calendar system
type Kind string

const (
	Gregorian Kind = "gregorian"
	Ethiopian Kind = "ethiopian"
)

// ErrInvalidRange is returned when an end date precedes its start date
var ErrInvalidRange = errors.New("calendar: end date precedes start date")

// ParseKind parses a configured calendar name (case-insensitive)
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Gregorian, "":
		return Gregorian, nil
	case Ethiopian:
		return Ethiopian, nil
	}
	return "", fmt.Errorf("unknown calendar kind %q", s)
}

// Date is a day in a specific calendar system. Clock is the real time elapsed
// since local midnight of that day, which keeps conversions lossless.
// In zones with daylight saving, a date moved onto a transition day keeps its
// elapsed time, so its wall clock reading shifts by the transition offset.
type Date struct {
	Year  int
	Month int
	Day   int
	Clock time.Duration
}

// Compare orders two dates of the same calendar system.
// It returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(d.Month - o.Month)
	case d.Day != o.Day:
		return sign(d.Day - o.Day)
	case d.Clock != o.Clock:
		if d.Clock < o.Clock {
			return -1
		}
		return 1
	}
	return 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Converter performs membership-calendar arithmetic for one calendar system
// in one time zone.
type Converter interface {
	Kind() Kind
	Location() *time.Location
	MonthsPerYear() int
	DaysInMonth(year, month int) int

	// ToCalendarDate maps an instant onto this calendar
	ToCalendarDate(t time.Time) Date
	// ToCivilInstant is the inverse of ToCalendarDate
	ToCivilInstant(d Date) time.Time
	// AddMonths moves d by n months, clamping the day to the target month length
	AddMonths(d Date, n int) Date
	// MonthsBetween counts elapsed months, a partial trailing month counting as one
	MonthsBetween(start, end Date) (int, error)
	// Format renders the calendar date of t for people, e.g. "Meskerem 1, 2017"
	Format(t time.Time) string
}

// system is the calendar-specific part of a converter: month lengths and the
// mapping to and from Julian Day Numbers.
type system interface {
	monthsPerYear() int
	daysInMonth(year, month int) int
	toJDN(year, month, day int) int
	fromJDN(jdn int) (year, month, day int)
	monthName(month int) string
}

type converter struct {
	kind Kind
	loc  *time.Location
	sys  system
}

// New returns the converter for kind. A nil loc means UTC.
func New(kind Kind, loc *time.Location) (Converter, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch kind {
	case Gregorian:
		return &converter{kind: kind, loc: loc, sys: gregorianSystem{}}, nil
	case Ethiopian:
		return &converter{kind: kind, loc: loc, sys: ethiopianSystem{}}, nil
	}
	return nil, fmt.Errorf("unknown calendar kind %q", kind)
}

// MustNew is like New but panics on an unknown kind
func MustNew(kind Kind, loc *time.Location) Converter {
	c, err := New(kind, loc)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *converter) Kind() Kind { return c.kind }

func (c *converter) Location() *time.Location { return c.loc }

func (c *converter) MonthsPerYear() int { return c.sys.monthsPerYear() }

func (c *converter) DaysInMonth(y, m int) int { return c.sys.daysInMonth(y, m) }

func (c *converter) Format(t time.Time) string {
	d := c.ToCalendarDate(t)
	return fmt.Sprintf("%s %d, %d", c.sys.monthName(d.Month), d.Day, d.Year)
}

func (c *converter) ToCalendarDate(t time.Time) Date {
	local := t.In(c.loc)
	gy, gm, gd := local.Date()
	midnight := time.Date(gy, gm, gd, 0, 0, 0, 0, c.loc)
	clock := local.Sub(midnight)

	if c.kind == Gregorian {
		return Date{Year: gy, Month: int(gm), Day: gd, Clock: clock}
	}
	y, m, d := c.sys.fromJDN(gregorianToJDN(gy, int(gm), gd))
	return Date{Year: y, Month: m, Day: d, Clock: clock}
}

func (c *converter) ToCivilInstant(d Date) time.Time {
	gy, gm, gd := d.Year, d.Month, d.Day
	if c.kind != Gregorian {
		gy, gm, gd = jdnToGregorian(c.sys.toJDN(d.Year, d.Month, d.Day))
	}
	return time.Date(gy, time.Month(gm), gd, 0, 0, 0, 0, c.loc).Add(d.Clock)
}

func (c *converter) AddMonths(d Date, n int) Date {
	per := c.sys.monthsPerYear()
	idx := d.Year*per + (d.Month - 1) + n
	year := floorDiv(idx, per)
	month := idx - year*per + 1

	day := d.Day
	if last := c.sys.daysInMonth(year, month); day > last {
		day = last
	}
	return Date{Year: year, Month: month, Day: day, Clock: d.Clock}
}

func (c *converter) MonthsBetween(start, end Date) (int, error) {
	switch end.Compare(start) {
	case -1:
		return 0, ErrInvalidRange
	case 0:
		return 0, nil
	}

	months := (end.Year-start.Year)*c.sys.monthsPerYear() + (end.Month - start.Month)
	if end.Day > start.Day || (end.Day == start.Day && end.Clock > start.Clock) {
		months++
	}
	if months < 1 {
		months = 1
	}
	return months, nil
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

// floorDiv rounds toward negative infinity, unlike Go's / operator
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
