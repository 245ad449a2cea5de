// Package prefs persists the per-session unit preference and search history.
// Each value lives in a single named slot and is always read and written whole.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/swelljoe/skycast/internal/weather"
)

const (
	UnitSlot    = "tempUnit"
	HistorySlot = "weatherSearchHistory"

	// MaxHistory caps the number of remembered searches.
	MaxHistory = 8
)

// Slots is the persisted key/value storage behind the stores.
type Slots interface {
	GetSlot(ctx context.Context, sessionID, name string) (string, bool, error)
	SetSlot(ctx context.Context, sessionID, name, value string) error
	DeleteSlot(ctx context.Context, sessionID, name string) error
}

// UnitStore loads and saves the display unit.
type UnitStore struct {
	slots     Slots
	sessionID string
	logger    *slog.Logger
}

func NewUnitStore(slots Slots, sessionID string, logger *slog.Logger) *UnitStore {
	return &UnitStore{slots: slots, sessionID: sessionID, logger: logger}
}

// Load never fails: missing or malformed state yields an empty history.
func (s *HistoryStore) Load(ctx context.Context) []string {
	names, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("load search history", "session", s.sessionID, "error", err)
		return []string{}
	}
	return names
}

// load reports storage errors; only an absent or malformed slot reads as
// an empty history.
func (s *HistoryStore) load(ctx context.Context) ([]string, error) {
	raw, ok, err := s.slots.GetSlot(ctx, s.sessionID, HistorySlot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		s.logger.Warn("ignoring malformed search history", "session", s.sessionID, "error", err)
		return []string{}, nil
	}
	return normalize(names), nil
}

// Save replaces the stored history.
func (s *HistoryStore) Save(ctx context.Context, names []string) error {
	data, err := json.Marshal(normalize(names))
	if err != nil {
		return err
	}
	return s.slots.SetSlot(ctx, s.sessionID, HistorySlot, string(data))
}

// Add puts name at the front. A name that is already present keeps its
// position and nothing is written. If the stored history cannot be read,
// Add writes nothing rather than replace it.
func (s *HistoryStore) Add(ctx context.Context, name string) ([]string, error) {
	names, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load search history: %w", err)
	}
	if name == "" || slices.Contains(names, name) {
		return names, nil
	}

	names = append([]string{name}, names...)
	if len(names) > MaxHistory {
		names = names[:MaxHistory]
	}
	if err := s.Save(ctx, names); err != nil {
		return nil, err
	}
	return names, nil
}

// Clear removes the history slot.
func (s *HistoryStore) Clear(ctx context.Context) error {
	return s.slots.DeleteSlot(ctx, s.sessionID, HistorySlot)
}

// normalize drops empty and repeated names and applies the cap, so a
// hand-edited or legacy slot still satisfies the history invariants.
func normalize(names []string) []string {
	out := make([]string, 0, min(len(names), MaxHistory))
	for _, n := range names {
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
		if len(out) == MaxHistory {
			break
		}
	}
	return out
}
