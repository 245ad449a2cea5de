package views

import (
	"fmt"
	"slices"
	"strings"

	"github.com/swelljoe/skycast/internal/weather"
)

const (
	// middayMarker picks the one representative sample per day.
	middayMarker = "12:00:00"
	forecastDays = 5

	NoHistoryText = "No search history yet"
)

// CurrentView is the current-conditions panel.
type CurrentView struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	Temp        string `json:"temp"`
	Wind        string `json:"wind"`
	Humidity    string `json:"humidity"`
	IconURL     string `json:"icon_url"`
	Description string `json:"description"`
}

// ForecastCard is one day of the 5-day strip.
type ForecastCard struct {
	Date        string `json:"date"`
	Temp        string `json:"temp"`
	Wind        string `json:"wind"`
	Humidity    string `json:"humidity"`
	IconURL     string `json:"icon_url"`
	Description string `json:"description"`
}

// HistoryView is the recent-searches panel.
type HistoryView struct {
	Entries     []string `json:"entries"`
	Empty       bool     `json:"empty"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// Current builds the current-conditions panel from the first sample.
// It only reads the payload.
func Current(p *weather.ForecastPayload, name string, unit weather.Unit) CurrentView {
	if p == nil || len(p.Samples) == 0 {
		return CurrentView{Name: name}
	}
	s := p.Samples[0]
	v := CurrentView{
		Name:        name,
		Temp:        weather.FormatTemp(s.TempF, unit),
		Wind:        formatWind(s.WindSpeed),
		Humidity:    formatHumidity(s.Humidity),
		IconURL:     IconURL(s.Icon),
		Description: s.Description,
	}
	if !s.Time.IsZero() {
		v.Date = s.Time.Format("January 2, 2006")
	}
	return v
}

// Forecast builds one card per day from the midday samples, at most five,
// earliest first. It only reads the payload.
func Forecast(p *weather.ForecastPayload, unit weather.Unit) []ForecastCard {
	if p == nil {
		return nil
	}

	var midday []weather.Sample
	for _, s := range p.Samples {
		if strings.Contains(s.TimeText, middayMarker) {
			midday = append(midday, s)
		}
	}
	slices.SortStableFunc(midday, func(a, b weather.Sample) int {
		return a.Time.Compare(b.Time)
	})
	if len(midday) > forecastDays {
		midday = midday[:forecastDays]
	}

	cards := make([]ForecastCard, 0, len(midday))
	for _, s := range midday {
		cards = append(cards, ForecastCard{
			Date:        s.Time.Format("Jan 2"),
			Temp:        weather.FormatWholeTemp(s.TempF, unit),
			Wind:        formatWind(s.WindSpeed),
			Humidity:    formatHumidity(s.Humidity),
			IconURL:     IconURL(s.Icon),
			Description: s.Description,
		})
	}
	return cards
}

// History builds the history panel.
func History(entries []string) HistoryView {
	if len(entries) == 0 {
		return HistoryView{Entries: []string{}, Empty: true, Placeholder: NoHistoryText}
	}
	return HistoryView{Entries: slices.Clone(entries)}
}

// UnitLabel is the caption of the unit toggle: it names the unit a click switches to.
func UnitLabel(active weather.Unit) string {
	return "Switch to " + active.Toggle().Symbol()
}

// IconURL returns the OpenWeatherMap image for a condition icon code.
func IconURL(icon string) string {
	if icon == "" {
		return ""
	}
	return fmt.Sprintf("https://openweathermap.org/img/wn/%s@2x.png", icon)
}

func formatWind(mph float64) string {
	return fmt.Sprintf("%.1f mph", mph)
}

func formatHumidity(pct int) string {
	return fmt.Sprintf("%d%%", pct)
}
