package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swelljoe/skycast/internal/metrics"
	"github.com/swelljoe/skycast/internal/views"
)

// Session is the in-memory state of one browser.
type Session struct {
	ID           string
	Orchestrator *Orchestrator
	Page         *views.Page

	lastSeen time.Time
}

// Factory builds the orchestrator of a new session, binding its
// per-session stores to page.
type Factory func(id string, page *views.Page) *Orchestrator

// Registry keeps sessions in memory and evicts idle ones. Evicting a session
// drops only its retained search; the unit and history are persisted.
type Registry struct {
	// MaxSessions bounds the sessions held; when full, the least recently
	// seen session makes room for a new one. Zero means no bound.
	MaxSessions int

	factory Factory
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(factory Factory, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating and restoring it on first use.
func (r *Registry) Get(ctx context.Context, id string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.now()
		r.mu.Unlock()
		return s
	}

	evicted := ""
	if r.MaxSessions > 0 && len(r.sessions) >= r.MaxSessions {
		evicted = r.evictOldestLocked()
	}
	page := views.NewPage()
	s = &Session{ID: id, Page: page, lastSeen: r.now()}
	s.Orchestrator = r.factory(id, page)
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetSessions(n)
	if evicted != "" {
		r.logger.Debug("session limit reached, evicted least recent", "session", evicted, "max", r.MaxSessions)
	}
	s.Orchestrator.Restore(ctx)
	r.logger.Debug("session started", "session", id)
	return s
}

// evictOldestLocked removes the least recently seen session and returns its
// id. r.mu must be held.
func (r *Registry) evictOldestLocked() string {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.lastSeen.Before(oldest.lastSeen) {
			oldest = s
		}
	}
	if oldest == nil {
		return ""
	}
	delete(r.sessions, oldest.ID)
	return oldest.ID
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.ttl {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetSessions(n)
	if removed > 0 {
		r.logger.Info("evicted idle sessions", "count", removed, "remaining", n)
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			r.Sweep(t)
		}
	}
}
