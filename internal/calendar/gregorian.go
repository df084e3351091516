package calendar

import "time"

// unixEpochJDN is the Julian Day Number of 1970-01-01
const unixEpochJDN = 2440588

const secondsPerDay = 24 * 60 * 60

type gregorianSystem struct{}

func (gregorianSystem) monthsPerYear() int { return 12 }

func (gregorianSystem) daysInMonth(year, month int) int {
	switch month {
	case 2:
		if IsGregorianLeap(year) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	}
	return 31
}

func (gregorianSystem) monthName(month int) string {
	return time.Month(month).String()
}

func (gregorianSystem) toJDN(year, month, day int) int {
	return gregorianToJDN(year, month, day)
}

func (gregorianSystem) fromJDN(jdn int) (int, int, int) {
	return jdnToGregorian(jdn)
}

// IsGregorianLeap reports whether year has a February 29th
func IsGregorianLeap(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func gregorianToJDN(year, month, day int) int {
	days := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
	return int(days) + unixEpochJDN
}

func jdnToGregorian(jdn int) (int, int, int) {
	t := time.Unix(int64(jdn-unixEpochJDN)*secondsPerDay, 0).UTC()
	y, m, d := t.Date()
	return y, int(m), d
}
