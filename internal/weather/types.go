package weather

import "time"

// Unit is the temperature unit used for display.
type Unit string

const (
	Imperial Unit = "imperial"
	Metric   Unit = "metric"
)

// DefaultUnit applies when no valid preference has been stored.
const DefaultUnit = Imperial

// ParseUnit accepts only the two known unit names.
func ParseUnit(s string) (Unit, bool) {
	switch Unit(s) {
	case Imperial, Metric:
		return Unit(s), true
	}
	return "", false
}

// Toggle returns the other unit.
func (u Unit) Toggle() Unit {
	if u == Metric {
		return Imperial
	}
	return Metric
}

func (u Unit) Symbol() string {
	if u == Metric {
		return "°C"
	}
	return "°F"
}

// Place is one geocoding match.
type Place struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

// Sample is one timestamped point of a forecast. Temperatures are Fahrenheit
// and wind speed is mph, as requested from the forecast API.
type Sample struct {
	Time        time.Time `json:"time"`
	TimeText    string    `json:"time_text"`
	TempF       float64   `json:"temp_f"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	ConditionID int       `json:"condition_id"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
}

// ForecastPayload is a fetched forecast. Samples are in chronological order
// and the payload is never modified after it is returned.
type ForecastPayload struct {
	City    string   `json:"city"`
	Samples []Sample `json:"samples"`
}
