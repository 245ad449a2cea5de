package weather

import (
	"fmt"
	"math"
)

// ConvertTemp converts a Fahrenheit reading to u without rounding.
func ConvertTemp(f float64, u Unit) float64 {
	if u == Metric {
		return (f - 32) * 5 / 9
	}
	return f
}

// RoundTemp converts f to u and rounds to one decimal place, halves away from zero.
func RoundTemp(f float64, u Unit) float64 {
	r := math.Round(ConvertTemp(f, u)*10) / 10
	if r == 0 {
		r = 0 // drop negative zero
	}
	return r
}

// FormatTemp renders f in u with one decimal, e.g. "59.0°F" or "15.0°C".
func FormatTemp(f float64, u Unit) string {
	return fmt.Sprintf("%.1f%s", RoundTemp(f, u), u.Symbol())
}

// FormatWholeTemp renders f in u rounded to a whole number, e.g. "15°C".
// Halves round up, so -2.5 becomes -2.
func FormatWholeTemp(f float64, u Unit) string {
	r := math.Floor(ConvertTemp(f, u) + 0.5)
	if r == 0 {
		r = 0
	}
	return fmt.Sprintf("%.0f%s", r, u.Symbol())
}
