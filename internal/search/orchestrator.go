// Package search runs the lookup pipeline of one session: validate the
// input, geocode it, fetch the forecast, render it and remember the search.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/swelljoe/skycast/internal/metrics"
	"github.com/swelljoe/skycast/internal/views"
	"github.com/swelljoe/skycast/internal/weather"
)

type Geocoder interface {
	Resolve(ctx context.Context, placeName string) ([]weather.Place, error)
}

type Forecaster interface {
	Resolve(ctx context.Context, lat, lon float64) (*weather.ForecastPayload, error)
}

type UnitStore interface {
	Load(ctx context.Context) weather.Unit
	Save(ctx context.Context, u weather.Unit) error
}

type HistoryStore interface {
	Load(ctx context.Context) []string
	Add(ctx context.Context, name string) ([]string, error)
	Clear(ctx context.Context) error
}

// Presenter receives every visible change. *views.Page implements it.
type Presenter interface {
	ShowError(msg string)
	ClearError()
	ShowLoading()
	HideLoading()
	Alert(msg string)
	ShowCurrent(v views.CurrentView)
	ShowForecast(cards []views.ForecastCard)
	ShowHistory(h views.HistoryView)
	SetUnitLabel(label string)
}

// Locator reports the user's position. Implementations return
// ErrGeolocationUnavailable when no position source exists and
// ErrGeolocationDenied when the user refused.
type Locator interface {
	Locate(ctx context.Context) (lat, lon float64, err error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) bool
}

// RetainedSearch is the last successful lookup, kept so a unit toggle can
// re-render without another network call.
type RetainedSearch struct {
	Payload *weather.ForecastPayload
	Name    string
}

type Deps struct {
	Geocoder   Geocoder
	Forecaster Forecaster
	Units      UnitStore
	History    HistoryStore
	Presenter  Presenter
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

type Orchestrator struct {
	geocoder   Geocoder
	forecaster Forecaster
	units      UnitStore
	history    HistoryStore
	view       Presenter
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	unit     weather.Unit
	retained *RetainedSearch
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		geocoder:   d.Geocoder,
		forecaster: d.Forecaster,
		units:      d.Units,
		history:    d.History,
		view:       d.Presenter,
		logger:     logger,
		metrics:    d.Metrics,
		unit:       weather.DefaultUnit,
	}
}

// Restore loads the persisted unit and history and renders the toggle
// label and the history panel.
func (o *Orchestrator) Restore(ctx context.Context) {
	u := o.units.Load(ctx)

	o.mu.Lock()
	o.unit = u
	o.mu.Unlock()

	o.view.SetUnitLabel(views.UnitLabel(u))
	o.view.ShowHistory(views.History(o.history.Load(ctx)))
}

// Unit returns the active display unit.
func (o *Orchestrator) Unit() weather.Unit {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unit
}

// Retained returns the last successful lookup, if any.
func (o *Orchestrator) Retained() (RetainedSearch, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retained == nil {
		return RetainedSearch{}, false
	}
	return *o.retained, true
}

// SubmitSearch validates raw input and, if it is acceptable, looks the city up.
// Invalid input is shown as a banner and returned as *ValidationError
// without touching the network.
func (o *Orchestrator) SubmitSearch(ctx context.Context, raw string) error {
	city := strings.TrimSpace(raw)
	if err := validateCity(city); err != nil {
		o.metrics.Lookup("city", "invalid")
		o.view.ShowError(err.Msg)
		return err
	}
	o.view.ClearError()
	return o.searchCity(ctx, city)
}

// SearchHistory repeats the search for the idx-th history entry.
func (o *Orchestrator) SearchHistory(ctx context.Context, idx int) error {
	names := o.history.Load(ctx)
	if idx < 0 || idx >= len(names) {
		return fmt.Errorf("%w: %d", ErrNoHistoryEntry, idx)
	}
	o.view.ClearError()
	return o.searchCity(ctx, names[idx])
}

func validateCity(city string) *ValidationError {
	if city == "" {
		return &ValidationError{Msg: MsgEmptyCity}
	}
	if utf8.RuneCountInString(city) < minCityNameRunes {
		return &ValidationError{Msg: MsgShortCity}
	}
	return nil
}

func (o *Orchestrator) searchCity(ctx context.Context, city string) error {
	o.view.ShowLoading()

	places, err := o.geocoder.Resolve(ctx, city)
	if err != nil {
		o.logger.Error("geocode failed", "city", city, "error", err)
		o.metrics.Lookup("city", "failed")
		o.view.Alert(MsgGeocodeFailed)
		o.view.HideLoading()
		return fmt.Errorf("geocode %q: %w", city, err)
	}
	if len(places) == 0 {
		o.logger.Info("no geocode match", "city", city)
		o.metrics.Lookup("city", "not_found")
		o.view.Alert(MsgCityNotFound)
		o.view.HideLoading()
		return ErrPlaceNotFound
	}

	best := places[0]
	name := best.DisplayName
	if name == "" {
		name = city
	}
	return o.fetchAndShow(ctx, "city", best.Lat, best.Lon, name)
}

// RequestLocalWeather looks up the forecast at the user's position.
func (o *Orchestrator) RequestLocalWeather(ctx context.Context, loc Locator) error {
	if loc == nil {
		return o.noGeolocation(ErrGeolocationUnavailable)
	}

	lat, lon, err := loc.Locate(ctx)
	if errors.Is(err, ErrGeolocationUnavailable) {
		return o.noGeolocation(err)
	}

	o.view.ShowLoading()
	if err != nil {
		o.logger.Warn("locate failed", "error", err)
		o.metrics.Lookup("location", "failed")
		o.view.HideLoading()
		o.view.Alert(MsgLocationFailed)
		return fmt.Errorf("locate: %w", err)
	}
	return o.fetchAndShow(ctx, "location", lat, lon, LocalWeatherLabel)
}

func (o *Orchestrator) noGeolocation(err error) error {
	o.logger.Info("geolocation not available")
	o.metrics.Lookup("location", "unavailable")
	o.view.Alert(MsgNoGeolocation)
	return err
}

// fetchAndShow fetches the forecast at lat/lon and, on success, retains it,
// renders it and records name in the history.
func (o *Orchestrator) fetchAndShow(ctx context.Context, kind string, lat, lon float64, name string) error {
	payload, err := o.forecaster.Resolve(ctx, lat, lon)
	if err != nil {
		o.logger.Error("forecast failed", "name", name, "lat", lat, "lon", lon, "error", err)
		o.metrics.Lookup(kind, "failed")
		o.view.Alert(MsgForecastFailed)
		o.view.HideLoading()
		return fmt.Errorf("forecast for %q: %w", name, err)
	}

	retained := &RetainedSearch{Payload: payload, Name: name}
	o.mu.Lock()
	o.retained = retained
	unit := o.unit
	o.mu.Unlock()

	o.renderRetained(retained, unit)

	names, err := o.history.Add(ctx, name)
	if err != nil {
		o.logger.Warn("save search history", "name", name, "error", err)
		names = o.history.Load(ctx)
	}
	o.view.ShowHistory(views.History(names))

	o.metrics.Lookup(kind, "ok")
	o.logger.Debug("lookup complete", "kind", kind, "name", name, "samples", len(payload.Samples))
	return nil
}

func (o *Orchestrator) render(payload *weather.ForecastPayload, name string, unit weather.Unit) {
	o.view.ShowCurrent(views.Current(payload, name, unit))
	o.view.ShowForecast(views.Forecast(payload, unit))
}

// renderRetained renders r in unit and repeats the render if the unit was
// toggled meanwhile, so the last render always matches the current unit. It
// stops once a newer search has replaced r.
func (o *Orchestrator) renderRetained(r *RetainedSearch, unit weather.Unit) {
	for {
		o.render(r.Payload, r.Name, unit)

		o.mu.Lock()
		current, retained := o.unit, o.retained
		o.mu.Unlock()
		if retained != r || current == unit {
			return
		}
		unit = current
	}
}

// ToggleUnit switches between Fahrenheit and Celsius, persists the choice
// and re-renders the retained search. It never touches the network.
func (o *Orchestrator) ToggleUnit(ctx context.Context) weather.Unit {
	o.mu.Lock()
	o.unit = o.unit.Toggle()
	unit := o.unit
	retained := o.retained
	o.mu.Unlock()

	if err := o.units.Save(ctx, unit); err != nil {
		o.logger.Warn("save unit preference", "unit", unit, "error", err)
	}
	o.view.SetUnitLabel(views.UnitLabel(unit))
	if retained != nil {
		o.renderRetained(retained, unit)
	}
	return unit
}

// ClearHistory empties the history if the user confirms. It reports whether
// anything was cleared.
func (o *Orchestrator) ClearHistory(ctx context.Context, c Confirmer) (bool, error) {
	if c == nil || !c.Confirm(MsgConfirmClear) {
		return false, nil
	}
	if err := o.history.Clear(ctx); err != nil {
		return false, fmt.Errorf("clear search history: %w", err)
	}
	o.view.ShowHistory(views.History(nil))
	return true, nil
}
