package overrides

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

func newStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	s, err := New(context.Background(), backend, zerolog.Nop(), nil)
	require.NoError(t, err)
	return s
}

func TestStore_Lookup(t *testing.T) {
	s := newStore(t, NewMemoryBackend(map[string]string{"NYC": "New York"}))

	tests := []struct {
		name   string
		value  string
		want   string
		wantOK bool
	}{
		{name: "raw key any case", value: "nyc", want: "New York", wantOK: true},
		{name: "raw key padded", value: "  NyC ", want: "New York", wantOK: true},
		{name: "canonical target is a fixed point", value: "new york", want: "New York", wantOK: true},
		{name: "unknown", value: "boston"},
		{name: "blank", value: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Lookup(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_RecordOverride(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(nil)
	s := newStore(t, backend)

	entry, err := s.RecordOverride(ctx, "  Bombay ", "Mumbai")
	require.NoError(t, err)
	assert.Equal(t, "bombay", entry.Raw)
	assert.Equal(t, "Mumbai", entry.Canonical)
	assert.False(t, entry.UpdatedAt.IsZero())

	got, ok := s.Lookup("BOMBAY")
	require.True(t, ok)
	assert.Equal(t, "Mumbai", got)

	// Last write wins and the upsert is idempotent.
	_, err = s.RecordOverride(ctx, "bombay", "Mumbai City")
	require.NoError(t, err)
	_, err = s.RecordOverride(ctx, "bombay", "Mumbai City")
	require.NoError(t, err)

	got, _ = s.Lookup("bombay")
	assert.Equal(t, "Mumbai City", got)
	assert.Len(t, s.Entries(), 1)

	// The old target is no longer a fixed point.
	_, ok = s.Lookup("mumbai")
	assert.False(t, ok)

	snap, err := backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mumbai City", snap.Overrides["bombay"].Canonical)
}

func TestStore_RecordOverride_Validation(t *testing.T) {
	s := newStore(t, NewMemoryBackend(nil))

	_, err := s.RecordOverride(context.Background(), " ", "x")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = s.RecordOverride(context.Background(), "x", "  ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

type failingBackend struct {
	*MemoryBackend
}

func (f failingBackend) SaveOverride(context.Context, domain.OverrideEntry) error {
	return errors.New("disk full")
}

func TestStore_RecordOverride_PersistFailureLeavesStateUnchanged(t *testing.T) {
	s := newStore(t, failingBackend{NewMemoryBackend(nil)})

	_, err := s.RecordOverride(context.Background(), "bombay", "Mumbai")
	require.Error(t, err)

	_, ok := s.Lookup("bombay")
	assert.False(t, ok)
}

func TestStore_RemoveOverride(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryBackend(map[string]string{"nyc": "New York"}))

	require.NoError(t, s.RemoveOverride(ctx, "NYC"))
	_, ok := s.Lookup("nyc")
	assert.False(t, ok)

	err := s.RemoveOverride(ctx, "nyc")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_Whitelist(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryBackend(nil, "ACME corp"))

	assert.True(t, s.IsWhitelisted("acme CORP"))
	assert.False(t, s.IsWhitelisted("acme"))
	assert.False(t, s.IsWhitelisted(""))

	require.NoError(t, s.AddWhitelist(ctx, "iPhone"))
	assert.True(t, s.IsWhitelisted("iphone"))
	assert.Equal(t, []string{"acme corp", "iphone"}, s.Whitelist())

	require.NoError(t, s.RemoveWhitelist(ctx, "IPHONE"))
	assert.False(t, s.IsWhitelisted("iphone"))

	err := s.RemoveWhitelist(ctx, "iphone")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = s.AddWhitelist(ctx, " ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestStore_InnerWhitespaceKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryBackend(nil))

	require.NoError(t, s.AddWhitelist(ctx, "ACME  corp"))
	assert.True(t, s.IsWhitelisted("acme corp"))
	assert.True(t, s.IsWhitelisted(" ACME \t CORP "))
	assert.Equal(t, []string{"acme corp"}, s.Whitelist())

	entry, err := s.RecordOverride(ctx, "san  fran", "San Francisco")
	require.NoError(t, err)
	assert.Equal(t, "san fran", entry.Raw)

	got, ok := s.Lookup("San Fran")
	require.True(t, ok)
	assert.Equal(t, "San Francisco", got)

	require.NoError(t, s.RemoveWhitelist(ctx, "acme   corp"))
	assert.False(t, s.IsWhitelisted("acme corp"))
}

func TestStore_WhitelistKeepsOverrideTargets(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryBackend(map[string]string{"nyc": "New York"}))

	require.NoError(t, s.AddWhitelist(ctx, "acme"))
	got, ok := s.Lookup("new york")
	require.True(t, ok)
	assert.Equal(t, "New York", got)
}

func TestStore_NilIsEmpty(t *testing.T) {
	var s *Store
	_, ok := s.Lookup("x")
	assert.False(t, ok)
	assert.False(t, s.IsWhitelisted("x"))
}

func TestStore_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, NewMemoryBackend(nil))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := s.RecordOverride(ctx, fmt.Sprintf("k%d-%d", w, i), fmt.Sprintf("V%d", i))
				assert.NoError(t, err)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if v, ok := s.Lookup("k0-1"); ok {
					assert.Equal(t, "V1", v)
				}
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Entries(), 200)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mappings := filepath.Join(dir, "state", "user_mappings.json")
	whitelist := filepath.Join(dir, "state", "whitelist.txt")

	s := newStore(t, NewFileBackend(mappings, whitelist))
	_, err := s.RecordOverride(ctx, "Bombay", "Mumbai")
	require.NoError(t, err)
	require.NoError(t, s.AddWhitelist(ctx, "ACME"))

	data, err := os.ReadFile(mappings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bombay":"Mumbai"}`, string(data))

	data, err = os.ReadFile(whitelist)
	require.NoError(t, err)
	assert.Equal(t, "acme\n", string(data))

	reopened := newStore(t, NewFileBackend(mappings, whitelist))
	got, ok := reopened.Lookup("bombay")
	require.True(t, ok)
	assert.Equal(t, "Mumbai", got)
	assert.True(t, reopened.IsWhitelisted("Acme"))

	require.NoError(t, reopened.RemoveOverride(ctx, "bombay"))
	data, err = os.ReadFile(mappings)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestFileBackend_MissingFilesAreEmpty(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "m.json"), filepath.Join(dir, "w.txt"))

	snap, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Overrides)
	assert.Empty(t, snap.Whitelist)
}

func TestFileBackend_NormalizesLegacyKeys(t *testing.T) {
	dir := t.TempDir()
	mappings := filepath.Join(dir, "m.json")
	require.NoError(t, os.WriteFile(mappings, []byte(`{" Bombay ": "Mumbai", "san  fran": "San Francisco"}`), 0o600))
	whitelist := filepath.Join(dir, "w.txt")
	require.NoError(t, os.WriteFile(whitelist, []byte("ACME  corp\n"), 0o600))

	s := newStore(t, NewFileBackend(mappings, whitelist))
	got, ok := s.Lookup("bombay")
	require.True(t, ok)
	assert.Equal(t, "Mumbai", got)

	got, ok = s.Lookup("san fran")
	require.True(t, ok)
	assert.Equal(t, "San Francisco", got)
	assert.True(t, s.IsWhitelisted("acme corp"))
}

func TestFileBackend_CorruptMappings(t *testing.T) {
	dir := t.TempDir()
	mappings := filepath.Join(dir, "m.json")
	require.NoError(t, os.WriteFile(mappings, []byte(`{not json`), 0o600))

	_, err := New(context.Background(), NewFileBackend(mappings, filepath.Join(dir, "w.txt")), zerolog.Nop(), nil)
	require.Error(t, err)
}
