package search

import "errors"

// User-facing messages.
const (
	MsgEmptyCity      = "Please enter a valid city name"
	MsgShortCity      = "City name must be at least 2 characters"
	MsgCityNotFound   = "City not found. Please try again."
	MsgGeocodeFailed  = "An error occurred. Please try again."
	MsgForecastFailed = "Unable to fetch weather data. Please try again."
	MsgNoGeolocation  = "Geolocation is not available."
	MsgLocationFailed = "Unable to retrieve your location."
	MsgConfirmClear   = "Clear all search history?"
	LocalWeatherLabel = "Your Location"
	minCityNameRunes  = 2
)

// ValidationError rejects input before any network call is made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

var (
	// ErrPlaceNotFound means the geocoder answered with no matches. It is
	// reported to the user but is not a failure of either service.
	ErrPlaceNotFound = errors.New("place not found")

	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
	ErrGeolocationDenied      = errors.New("geolocation permission denied")

	ErrNoHistoryEntry = errors.New("no such history entry")
)
