package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/swelljoe/skycast/internal/search"
	"github.com/swelljoe/skycast/internal/views"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "skycast_session"

// Database defines the interface for database operations needed by handlers
type Database interface {
	PingContext(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers
type Handlers struct {
	sessions *search.Registry
	db       Database
	logger   *slog.Logger

	// SecureCookie marks the session cookie Secure; set it when served over TLS.
	SecureCookie bool
}

// New creates a new Handlers instance. database may be nil.
func New(sessions *search.Registry, database Database, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{sessions: sessions, db: database, logger: logger}
}

// RegisterRoutes mounts the page, its form actions and the JSON view on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(views.Static()))))

	r.Group(func(r chi.Router) {
		r.Use(h.withSession)
		r.Get("/", h.HandleIndex)
		r.Get("/api/view", h.HandleView)
		r.Post("/search", h.HandleSearch)
		r.Post("/local", h.HandleLocal)
		r.Post("/unit/toggle", h.HandleToggleUnit)
		r.Post("/history/clear", h.HandleClearHistory)
		r.Post("/history/{idx}", h.HandleHistory)
	})
}

type sessionKey struct{}

// withSession makes sure every request carries a valid session id, issuing
// a fresh one when the cookie is missing or malformed.
func (h *Handlers) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

func (h *Handlers) session(r *http.Request) *search.Session {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return h.sessions.Get(r.Context(), id)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func backToPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleIndex renders the page for the caller's session
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	data := h.session(r).Page.Snapshot()

	var buf bytes.Buffer
	if err := views.RenderPage(&buf, data); err != nil {
		h.logger.Error("render page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("write page", "error", err)
	}
}

// HandleView returns the page state as JSON. Alerts stay queued for the
// next page render.
func (h *Handlers) HandleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(r).Page.Peek())
}

// HandleHealth handles health check endpoint
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Warn("health check ping failed", "error", err)
			status = "degraded"
		}
	} else {
		status = "no_database"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleSearch looks up the submitted city
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	err := h.session(r).Orchestrator.SubmitSearch(r.Context(), r.PostFormValue("city"))
	h.logOutcome("search", err)
	backToPage(w, r)
}

// HandleHistory repeats the search for one history entry
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		http.Error(w, "invalid history index", http.StatusBadRequest)
		return
	}
	err = h.session(r).Orchestrator.SearchHistory(r.Context(), idx)
	h.logOutcome("history search", err)
	backToPage(w, r)
}

// HandleLocal looks up the weather at the position the browser reported
func (h *Handlers) HandleLocal(w http.ResponseWriter, r *http.Request) {
	loc := formLocator{
		lat:      strings.TrimSpace(r.PostFormValue("lat")),
		lon:      strings.TrimSpace(r.PostFormValue("lon")),
		geoError: strings.TrimSpace(r.PostFormValue("geo_error")),
	}
	err := h.session(r).Orchestrator.RequestLocalWeather(r.Context(), loc)
	h.logOutcome("local weather", err)
	backToPage(w, r)
}

// HandleToggleUnit flips the display unit
func (h *Handlers) HandleToggleUnit(w http.ResponseWriter, r *http.Request) {
	h.session(r).Orchestrator.ToggleUnit(r.Context())
	backToPage(w, r)
}

// HandleClearHistory empties the history when the browser confirmed it
func (h *Handlers) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	confirmed := formConfirmer(r.PostFormValue("confirm") == "yes")
	if _, err := h.session(r).Orchestrator.ClearHistory(r.Context(), confirmed); err != nil {
		h.logger.Error("clear history", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	backToPage(w, r)
}

// logOutcome notes an error the orchestrator has already logged and shown.
func (h *Handlers) logOutcome(action string, err error) {
	if err != nil {
		h.logger.Debug(action+" did not complete", "error", err)
	}
}

// formLocator carries the outcome of navigator.geolocation as posted by the
// page script: coordinates on success, the browser's error code on failure,
// and nothing at all when the browser has no geolocation.
type formLocator struct {
	lat, lon string
	geoError string
}

// Browser GeolocationPositionError.PERMISSION_DENIED.
const permissionDenied = "1"

func (l formLocator) Locate(context.Context) (float64, float64, error) {
	switch {
	case l.lat != "" && l.lon != "":
		lat, err := parseCoordinate(l.lat, 90)
		if err != nil {
			return 0, 0, fmt.Errorf("latitude: %w", err)
		}
		lon, err := parseCoordinate(l.lon, 180)
		if err != nil {
			return 0, 0, fmt.Errorf("longitude: %w", err)
		}
		return lat, lon, nil
	case l.geoError == permissionDenied:
		return 0, 0, search.ErrGeolocationDenied
	case l.geoError != "":
		return 0, 0, fmt.Errorf("geolocation error code %s", l.geoError)
	default:
		return 0, 0, search.ErrGeolocationUnavailable
	}
}

func parseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("%s out of range", s)
	}
	return v, nil
}

type formConfirmer bool

func (c formConfirmer) Confirm(string) bool { return bool(c) }
