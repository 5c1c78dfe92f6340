// Package statestore holds the in-memory ring of recent desktop
// observations plus the current one, a rolling session summary, and an
// idle flag. Its contract is "latest wins, not monotonic": a reader never
// blocks behind a writer for longer than a single mutex critical section.
package statestore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/desktopai/runcontrol/internal/domain"
)

// historySize bounds the recent-observation ring kept for operator
// inspection and durable-store replay seeding.
const historySize = 200

// idleAfter is how long without a new observation the store considers
// the desktop idle.
const idleAfter = 2 * time.Minute

// Store is the State Store: one process-wide instance fed by the
// Collector Gateway and read by the Task Orchestrator on every cycle.
type Store struct {
	mu       sync.RWMutex
	current  *domain.Observation
	history  *lru.Cache[int64, domain.Observation]
	seq      int64
	summary  string
	lastSeen time.Time
}

// New constructs an empty Store.
func New() *Store {
	cache, _ := lru.New[int64, domain.Observation](historySize)
	return &Store{history: cache}
}

// Record ingests a freshly observed window event, deriving an Observation
// from it and making it the current one. It returns the derived
// Observation for callers (the Collector Gateway) that also need to
// broadcast or persist it.
func (s *Store) Record(evt domain.WindowEvent) domain.Observation {
	obs := domain.Observation{
		WindowTitle:          evt.Title,
		ProcessID:            evt.ProcessID,
		Timestamp:            evt.Timestamp,
		AccessibilitySummary: domain.TruncateAccessibilitySummary(accessibilitySummaryFrom(evt)),
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := obs.Clone()
	s.current = &clone
	s.lastSeen = obs.Timestamp
	s.seq++
	s.history.Add(s.seq, obs.Clone())
	return obs
}

// accessibilitySummaryFrom derives a flat summary string from a window
// event's extra UI Automation payload, if the collector supplied one.
func accessibilitySummaryFrom(evt domain.WindowEvent) string {
	if evt.Extra == nil {
		return ""
	}
	if raw, ok := evt.Extra["accessibility_summary"]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

// Current returns the latest Observation, or nil if none has been
// recorded yet.
func (s *Store) Current() *domain.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	clone := s.current.Clone()
	return &clone
}

// SetSummary updates the rolling session summary text (maintained by a
// collaborator outside this core, e.g. activity classification).
func (s *Store) SetSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

// Summary returns the current session summary text.
func (s *Store) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Idle reports whether no observation has arrived within idleAfter of
// now.
func (s *Store) Idle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSeen.IsZero() {
		return true
	}
	return time.Since(s.lastSeen) > idleAfter
}

// RecentHistory returns up to limit of the most recently recorded
// observations, oldest first. limit <= 0 returns the full bounded ring.
func (s *Store) RecentHistory(limit int) []domain.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.history.Keys()
	out := make([]domain.Observation, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.history.Peek(k); ok {
			out = append(out, v.Clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
