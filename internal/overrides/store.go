// Package overrides holds user-approved corrections and the whitelist of
// values that must never be altered.
//
// Writes follow a single-writer discipline: they are serialized, persisted
// through a Backend and only then published as a new immutable snapshot.
// Readers never block and observe either the previous or the new snapshot.
package overrides

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

// Snapshot is the persisted state of the store. Keys are lowercase.
type Snapshot struct {
	Overrides map[string]domain.OverrideEntry
	Whitelist map[string]struct{}
}

// Backend persists overrides and whitelist entries.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	SaveOverride(ctx context.Context, entry domain.OverrideEntry) error
	DeleteOverride(ctx context.Context, raw string) error
	SaveWhitelist(ctx context.Context, value string) error
	DeleteWhitelist(ctx context.Context, value string) error
}

type state struct {
	overrides map[string]domain.OverrideEntry
	targets   map[string]string
	whitelist map[string]struct{}
}

func newState(snap Snapshot) *state {
	st := &state{
		overrides: make(map[string]domain.OverrideEntry, len(snap.Overrides)),
		targets:   make(map[string]string, len(snap.Overrides)),
		whitelist: make(map[string]struct{}, len(snap.Whitelist)),
	}
	for k, e := range snap.Overrides {
		key := domain.NormalizeKey(k)
		e.Raw = key
		st.overrides[key] = e
	}
	for k := range snap.Whitelist {
		st.whitelist[domain.NormalizeKey(k)] = struct{}{}
	}
	st.rebuildTargets()
	return st
}

// rebuildTargets indexes canonical values so that a value already equal to
// a canonical target resolves to itself. When several raw keys share a
// target spelling, the lexically smallest raw key wins.
func (st *state) rebuildTargets() {
	keys := make([]string, 0, len(st.overrides))
	for k := range st.overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	st.targets = make(map[string]string, len(keys))
	for _, k := range keys {
		canonical := st.overrides[k].Canonical
		tk := domain.NormalizeKey(canonical)
		if _, ok := st.targets[tk]; !ok {
			st.targets[tk] = canonical
		}
	}
}

func (st *state) clone() *state {
	out := &state{
		overrides: make(map[string]domain.OverrideEntry, len(st.overrides)+1),
		whitelist: make(map[string]struct{}, len(st.whitelist)+1),
	}
	for k, v := range st.overrides {
		out.overrides[k] = v
	}
	for k := range st.whitelist {
		out.whitelist[k] = struct{}{}
	}
	return out
}

// Store is the process-wide override and whitelist store.
type Store struct {
	backend Backend
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	writeMu sync.Mutex
	current atomic.Pointer[state]
}

// New loads the backend and returns a ready store.
func New(ctx context.Context, backend Backend, logger zerolog.Logger, metrics *observability.Metrics) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  logger.With().Str("component", "overrides").Logger(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory state with the backend's.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load overrides: %w", err)
	}
	st := newState(snap)
	s.current.Store(st)
	s.logger.Info().
		Int("overrides", len(st.overrides)).
		Int("whitelist", len(st.whitelist)).
		Msg("override store loaded")
	return nil
}

// Lookup returns the user-approved canonical value for value, if any.
func (s *Store) Lookup(value string) (string, bool) {
	if s == nil {
		return "", false
	}
	key := domain.NormalizeKey(value)
	if key == "" {
		return "", false
	}
	st := s.current.Load()
	if e, ok := st.overrides[key]; ok {
		return e.Canonical, true
	}
	if target, ok := st.targets[key]; ok {
		return target, true
	}
	return "", false
}

// IsWhitelisted reports whether value must be left untouched.
func (s *Store) IsWhitelisted(value string) bool {
	if s == nil {
		return false
	}
	key := domain.NormalizeKey(value)
	if key == "" {
		return false
	}
	_, ok := s.current.Load().whitelist[key]
	return ok
}

// RecordOverride upserts a correction keyed by the lowercased raw value.
// The last write for a key wins.
func (s *Store) RecordOverride(ctx context.Context, raw, canonical string) (domain.OverrideEntry, error) {
	key := domain.NormalizeKey(raw)
	if key == "" {
		return domain.OverrideEntry{}, domain.NewValidationError("raw", "must not be blank")
	}
	canonical = strings.Join(strings.Fields(canonical), " ")
	if canonical == "" {
		return domain.OverrideEntry{}, domain.NewValidationError("canonical", "must not be blank")
	}
	entry := domain.OverrideEntry{Raw: key, Canonical: canonical, UpdatedAt: s.now()}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.SaveOverride(ctx, entry); err != nil {
		return domain.OverrideEntry{}, fmt.Errorf("failed to save override: %w", err)
	}

	next := s.current.Load().clone()
	next.overrides[key] = entry
	next.rebuildTargets()
	s.current.Store(next)

	s.metrics.RecordOverrideWrite("override")
	s.logger.Info().Str("raw", key).Str("canonical", canonical).Msg("override recorded")
	return entry, nil
}

// RemoveOverride deletes the override for raw.
func (s *Store) RemoveOverride(ctx context.Context, raw string) error {
	key := domain.NormalizeKey(raw)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := s.current.Load().overrides[key]; !ok {
		return domain.NewNotFoundError("override", key)
	}
	if err := s.backend.DeleteOverride(ctx, key); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	next := s.current.Load().clone()
	delete(next.overrides, key)
	next.rebuildTargets()
	s.current.Store(next)

	s.metrics.RecordOverrideWrite("override_delete")
	return nil
}

// AddWhitelist marks value as never to be altered.
func (s *Store) AddWhitelist(ctx context.Context, value string) error {
	key := domain.NormalizeKey(value)
	if key == "" {
		return domain.NewValidationError("value", "must not be blank")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.backend.SaveWhitelist(ctx, key); err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}

	next := s.current.Load().clone()
	next.whitelist[key] = struct{}{}
	next.targets = s.current.Load().targets
	s.current.Store(next)

	s.metrics.RecordOverrideWrite("whitelist")
	return nil
}

// RemoveWhitelist deletes a whitelist entry.
func (s *Store) RemoveWhitelist(ctx context.Context, value string) error {
	key := domain.NormalizeKey(value)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, ok := s.current.Load().whitelist[key]; !ok {
		return domain.NewNotFoundError("whitelist entry", key)
	}
	if err := s.backend.DeleteWhitelist(ctx, key); err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}

	next := s.current.Load().clone()
	delete(next.whitelist, key)
	next.targets = s.current.Load().targets
	s.current.Store(next)

	s.metrics.RecordOverrideWrite("whitelist_delete")
	return nil
}

// Entries lists overrides ordered by raw key.
func (s *Store) Entries() []domain.OverrideEntry {
	st := s.current.Load()
	out := make([]domain.OverrideEntry, 0, len(st.overrides))
	for _, e := range st.overrides {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Raw < out[j].Raw })
	return out
}

// Whitelist lists whitelist entries in order.
func (s *Store) Whitelist() []string {
	st := s.current.Load()
	out := make([]string, 0, len(st.whitelist))
	for k := range st.whitelist {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
