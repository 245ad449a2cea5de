package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swelljoe/skycast/internal/config"
	"github.com/swelljoe/skycast/internal/db"
	"github.com/swelljoe/skycast/internal/prefs"
	"github.com/swelljoe/skycast/internal/search"
	"github.com/swelljoe/skycast/internal/views"
	"github.com/swelljoe/skycast/internal/weather"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const geocodeBody = `[{"lat":"48.8566","lon":"2.3522","display_name":"Paris, France"}]`

const forecastBody = `{"city":{"name":"Paris"},"list":[
	{"dt":1717243200,"dt_txt":"2024-06-01 12:00:00","main":{"temp":59.0,"humidity":70},
	 "wind":{"speed":5.2},"weather":[{"id":800,"main":"Clear","description":"clear sky","icon":"01d"}]}
]}`

type upstreams struct {
	geocodeHits  atomic.Int32
	forecastHits atomic.Int32
	geocodeBody  atomic.Value
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
	up     *upstreams
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}

	up := &upstreams{}
	up.geocodeBody.Store(geocodeBody)
	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.geocodeHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, up.geocodeBody.Load().(string))
	}))
	t.Cleanup(geoSrv.Close)
	fcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.forecastHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, forecastBody)
	}))
	t.Cleanup(fcSrv.Close)

	database, err := db.NewDB(config.Config{SQLiteDSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	geocoder := weather.NewGeocoder(weather.NewClient("skycast-test", 5*time.Second, 1000, nil), geoSrv.URL, "k")
	forecaster := weather.NewForecastClient(weather.NewClient("skycast-test", 5*time.Second, 1000, nil), fcSrv.URL, "k")
	registry := search.NewRegistry(func(id string, page *views.Page) *search.Orchestrator {
		return search.New(search.Deps{
			Geocoder:   geocoder,
			Forecaster: forecaster,
			Units:      prefs.NewUnitStore(database, id, discard),
			History:    prefs.NewHistoryStore(database, id, discard),
			Presenter:  page,
			Logger:     discard,
		})
	}, time.Hour, discard, nil)

	r := chi.NewRouter()
	New(registry, database, discard).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{server: srv, client: client, up: up}
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (e *testEnv) view(t *testing.T) views.PageData {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + "/api/view")
	if err != nil {
		t.Fatalf("GET /api/view: %v", err)
	}
	defer resp.Body.Close()
	var data views.PageData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return data
}

func TestHandleHealth(t *testing.T) {
	h := New(nil, nil, discard)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	h.HandleHealth(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK, got %v", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %v", ct)
	}
	if body, _ := io.ReadAll(resp.Body); !strings.Contains(string(body), "no_database") {
		t.Errorf("body = %s", body)
	}
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("gone") }

func TestHandleHealthDegraded(t *testing.T) {
	h := New(nil, failingPinger{}, discard)
	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest("GET", "/health", nil))

	if body := w.Body.String(); !strings.Contains(body, "degraded") {
		t.Errorf("body = %s", body)
	}
}

func TestIndexIssuesSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), views.NoHistoryText) {
		t.Error("page missing history placeholder")
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("session cookie = %+v", cookie)
	}

	// a known session keeps its cookie
	resp2, err := env.client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if len(resp2.Cookies()) != 0 {
		t.Errorf("cookie reissued: %v", resp2.Cookies())
	}
}

func TestMalformedCookieIsReplaced(t *testing.T) {
	h := New(nil, nil, discard)
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(sessionKey{}).(string)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "not-a-uuid"})
	w := httptest.NewRecorder()
	h.withSession(next).ServeHTTP(w, req)

	if seen == "" || seen == "not-a-uuid" {
		t.Errorf("session id = %q", seen)
	}
	if len(w.Result().Cookies()) != 1 {
		t.Error("no replacement cookie set")
	}
}

func TestSearchAndToggle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/search", url.Values{"city": {"Paris"}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("POST /search = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	v := env.view(t)
	if v.Current == nil || v.Current.Temp != "59.0°F" || v.Current.Name != "Paris, France" {
		t.Fatalf("current = %+v", v.Current)
	}
	if !slices.Equal(v.History.Entries, []string{"Paris, France"}) {
		t.Errorf("history = %+v", v.History)
	}
	if len(v.Forecast) != 1 || v.Forecast[0].Date != "Jun 1" {
		t.Errorf("forecast = %+v", v.Forecast)
	}

	env.post(t, "/unit/toggle", nil)
	v = env.view(t)
	if v.Current.Temp != "15.0°C" || v.UnitLabel != "Switch to °F" {
		t.Errorf("after toggle current = %+v label %q", v.Current, v.UnitLabel)
	}
	if got := env.up.forecastHits.Load(); got != 1 {
		t.Errorf("forecast hits = %d, want 1", got)
	}
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/search", url.Values{"city": {" a "}})
	v := env.view(t)
	if v.Banner != search.MsgShortCity {
		t.Errorf("banner = %q", v.Banner)
	}
	if env.up.geocodeHits.Load() != 0 {
		t.Error("geocoder called for invalid input")
	}
}

func TestSearchNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.up.geocodeBody.Store(`[]`)

	env.post(t, "/search", url.Values{"city": {"Zzzzz"}})
	v := env.view(t)
	if !slices.Equal(v.Alerts, []string{search.MsgCityNotFound}) {
		t.Errorf("alerts = %v", v.Alerts)
	}
	if env.up.forecastHits.Load() != 0 {
		t.Error("forecast fetched for unknown city")
	}
	// polling the JSON view leaves the alert for the page
	if again := env.view(t); !slices.Equal(again.Alerts, []string{search.MsgCityNotFound}) {
		t.Errorf("alerts after second view = %v", again.Alerts)
	}

	resp, err := env.client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), search.MsgCityNotFound) {
		t.Error("page did not show the alert")
	}
	if after := env.view(t); len(after.Alerts) != 0 {
		t.Errorf("alert shown twice: %v", after.Alerts)
	}
}

func TestHistoryResearch(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/search", url.Values{"city": {"Paris"}})

	resp := env.post(t, "/history/0", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("POST /history/0 = %d", resp.StatusCode)
	}
	if got := env.up.geocodeHits.Load(); got != 2 {
		t.Errorf("geocode hits = %d, want 2", got)
	}

	if resp := env.post(t, "/history/zero", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /history/zero = %d", resp.StatusCode)
	}
	if resp := env.post(t, "/history/7", nil); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("POST /history/7 = %d", resp.StatusCode)
	}
	if got := env.up.geocodeHits.Load(); got != 2 {
		t.Error("out-of-range entry hit the geocoder")
	}
}

func TestClearHistory(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/search", url.Values{"city": {"Paris"}})

	env.post(t, "/history/clear", url.Values{"confirm": {""}})
	if v := env.view(t); v.History.Empty {
		t.Error("history cleared without confirmation")
	}

	env.post(t, "/history/clear", url.Values{"confirm": {"yes"}})
	v := env.view(t)
	if !v.History.Empty || v.History.Placeholder != views.NoHistoryText {
		t.Errorf("history = %+v", v.History)
	}
}

func TestLocalWeather(t *testing.T) {
	tests := []struct {
		name      string
		form      url.Values
		wantAlert string
		wantName  string
	}{
		{"coordinates", url.Values{"lat": {"40.7128"}, "lon": {"-74.006"}}, "", search.LocalWeatherLabel},
		{"unavailable", url.Values{}, search.MsgNoGeolocation, ""},
		{"denied", url.Values{"geo_error": {"1"}}, search.MsgLocationFailed, ""},
		{"timeout", url.Values{"geo_error": {"3"}}, search.MsgLocationFailed, ""},
		{"bad latitude", url.Values{"lat": {"123"}, "lon": {"0"}}, search.MsgLocationFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.post(t, "/local", tt.form)
			v := env.view(t)

			if tt.wantAlert != "" && !slices.Equal(v.Alerts, []string{tt.wantAlert}) {
				t.Errorf("alerts = %v, want %q", v.Alerts, tt.wantAlert)
			}
			if tt.wantName != "" && (v.Current == nil || v.Current.Name != tt.wantName) {
				t.Errorf("current = %+v", v.Current)
			}
			if tt.wantName == "" && env.up.forecastHits.Load() != 0 {
				t.Error("forecast fetched without a position")
			}
			if env.up.geocodeHits.Load() != 0 {
				t.Error("geocoder called for a position lookup")
			}
		})
	}
}

func TestFormLocator(t *testing.T) {
	lat, lon, err := formLocator{lat: "1.5", lon: "-2.25"}.Locate(context.Background())
	if err != nil || lat != 1.5 || lon != -2.25 {
		t.Errorf("Locate = %v, %v, %v", lat, lon, err)
	}
	if _, _, err := (formLocator{geoError: "1"}).Locate(context.Background()); !errors.Is(err, search.ErrGeolocationDenied) {
		t.Errorf("denied err = %v", err)
	}
	if _, _, err := (formLocator{}).Locate(context.Background()); !errors.Is(err, search.ErrGeolocationUnavailable) {
		t.Errorf("empty err = %v", err)
	}
	if _, _, err := (formLocator{lat: "NaN", lon: "0"}).Locate(context.Background()); err == nil {
		t.Error("NaN latitude accepted")
	}
}

func TestStaticServed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Get(env.server.URL + "/static/app.js")
	if err != nil {
		t.Fatalf("failed to GET app.js: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("unexpected Content-Type: %s", ct)
	}
}
