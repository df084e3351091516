package calendar

import "fmt"

// ethiopicEraOffset is the Julian Day Number offset of the Amete Mihret era.
// Meskerem 1 of year 1 falls on JDN ethiopicEraOffset+365.
//
// Checked against published tables: Meskerem 1, 2016 = 2023-09-12,
// Meskerem 1, 2017 = 2024-09-11, Tahsas 29, 2017 = 2025-01-07.
const ethiopicEraOffset = 1723856

// Pagume is the short 13th month of the Ethiopian year
const Pagume = 13

var ethiopianMonths = [...]string{
	"Meskerem", "Tikimt", "Hidar", "Tahsas", "Tir", "Yekatit", "Megabit",
	"Miyazya", "Ginbot", "Sene", "Hamle", "Nehase", "Pagume",
}

type ethiopianSystem struct{}

func (ethiopianSystem) monthName(month int) string {
	if month < 1 || month > len(ethiopianMonths) {
		return fmt.Sprintf("%%!Month(%d)", month)
	}
	return ethiopianMonths[month-1]
}

func (ethiopianSystem) monthsPerYear() int { return 13 }

func (ethiopianSystem) daysInMonth(year, month int) int {
	if month != Pagume {
		return 30
	}
	if IsEthiopianLeap(year) {
		return 6
	}
	return 5
}

func (ethiopianSystem) toJDN(year, month, day int) int {
	return ethiopicEraOffset + 365 + 365*(year-1) + floorDiv(year, 4) + 30*month + day - 31
}

func (ethiopianSystem) fromJDN(jdn int) (int, int, int) {
	r := floorMod(jdn-ethiopicEraOffset, 1461)
	n := r%365 + 365*(r/1460)

	year := 4*floorDiv(jdn-ethiopicEraOffset, 1461) + r/365 - r/1460
	month := n/30 + 1
	day := n%30 + 1
	return year, month, day
}

// IsEthiopianLeap reports whether Pagume has six days in year
func IsEthiopianLeap(year int) bool {
	return floorMod(year, 4) == 3
}
