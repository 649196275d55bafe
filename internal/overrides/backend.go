package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/tableio"
)

// MemoryBackend keeps state in process memory only.
type MemoryBackend struct {
	mu        sync.Mutex
	overrides map[string]domain.OverrideEntry
	whitelist map[string]struct{}
}

// Compile-time check that MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns a backend seeded with optional overrides (raw to canonical).
func NewMemoryBackend(seed map[string]string, whitelist ...string) *MemoryBackend {
	b := &MemoryBackend{
		overrides: make(map[string]domain.OverrideEntry, len(seed)),
		whitelist: make(map[string]struct{}, len(whitelist)),
	}
	for raw, canonical := range seed {
		key := domain.NormalizeKey(raw)
		b.overrides[key] = domain.OverrideEntry{Raw: key, Canonical: canonical}
	}
	for _, w := range whitelist {
		b.whitelist[domain.NormalizeKey(w)] = struct{}{}
	}
	return b
}

// Load implements Backend.
func (b *MemoryBackend) Load(_ context.Context) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Overrides: make(map[string]domain.OverrideEntry, len(b.overrides)),
		Whitelist: make(map[string]struct{}, len(b.whitelist)),
	}
	for k, v := range b.overrides {
		snap.Overrides[k] = v
	}
	for k := range b.whitelist {
		snap.Whitelist[k] = struct{}{}
	}
	return snap, nil
}

// SaveOverride implements Backend.
func (b *MemoryBackend) SaveOverride(_ context.Context, entry domain.OverrideEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[entry.Raw] = entry
	return nil
}

// DeleteOverride implements Backend.
func (b *MemoryBackend) DeleteOverride(_ context.Context, raw string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.overrides, raw)
	return nil
}

// SaveWhitelist implements Backend.
func (b *MemoryBackend) SaveWhitelist(_ context.Context, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.whitelist[value] = struct{}{}
	return nil
}

// DeleteWhitelist implements Backend.
func (b *MemoryBackend) DeleteWhitelist(_ context.Context, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.whitelist, value)
	return nil
}

// FileBackend persists overrides as a JSON object of raw to canonical
// values and the whitelist as one value per line. Files are replaced
// atomically on every write.
type FileBackend struct {
	mappingsPath  string
	whitelistPath string

	mu        sync.Mutex
	overrides map[string]string
	whitelist map[string]struct{}
}

// Compile-time check that FileBackend implements Backend.
var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a file backend. Missing files are treated as empty.
func NewFileBackend(mappingsPath, whitelistPath string) *FileBackend {
	return &FileBackend{
		mappingsPath:  mappingsPath,
		whitelistPath: whitelistPath,
		overrides:     make(map[string]string),
		whitelist:     make(map[string]struct{}),
	}
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	overrides := make(map[string]string)
	data, err := os.ReadFile(b.mappingsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Snapshot{}, fmt.Errorf("read %s: %w", b.mappingsPath, err)
	case len(strings.TrimSpace(string(data))) > 0:
		if err := json.Unmarshal(data, &overrides); err != nil {
			return Snapshot{}, fmt.Errorf("parse %s: %w", b.mappingsPath, err)
		}
	}

	whitelist := make(map[string]struct{})
	f, err := os.Open(b.whitelistPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Snapshot{}, fmt.Errorf("open %s: %w", b.whitelistPath, err)
	default:
		lines, err := tableio.ReadLines(f)
		_ = f.Close()
		if err != nil {
			return Snapshot{}, err
		}
		for _, l := range lines {
			whitelist[domain.NormalizeKey(l)] = struct{}{}
		}
	}

	b.overrides = make(map[string]string, len(overrides))
	snap := Snapshot{
		Overrides: make(map[string]domain.OverrideEntry, len(overrides)),
		Whitelist: whitelist,
	}
	for raw, canonical := range overrides {
		key := domain.NormalizeKey(raw)
		b.overrides[key] = canonical
		snap.Overrides[key] = domain.OverrideEntry{Raw: key, Canonical: canonical}
	}
	b.whitelist = make(map[string]struct{}, len(whitelist))
	for k := range whitelist {
		b.whitelist[k] = struct{}{}
	}
	return snap, nil
}

// SaveOverride implements Backend.
func (b *FileBackend) SaveOverride(_ context.Context, entry domain.OverrideEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.overrides[entry.Raw]
	b.overrides[entry.Raw] = entry.Canonical
	if err := b.writeMappings(); err != nil {
		if had {
			b.overrides[entry.Raw] = prev
		} else {
			delete(b.overrides, entry.Raw)
		}
		return err
	}
	return nil
}

// DeleteOverride implements Backend.
func (b *FileBackend) DeleteOverride(_ context.Context, raw string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.overrides[raw]
	delete(b.overrides, raw)
	if err := b.writeMappings(); err != nil {
		if had {
			b.overrides[raw] = prev
		}
		return err
	}
	return nil
}

// SaveWhitelist implements Backend.
func (b *FileBackend) SaveWhitelist(_ context.Context, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, had := b.whitelist[value]
	b.whitelist[value] = struct{}{}
	if err := b.writeWhitelist(); err != nil {
		if !had {
			delete(b.whitelist, value)
		}
		return err
	}
	return nil
}

// DeleteWhitelist implements Backend.
func (b *FileBackend) DeleteWhitelist(_ context.Context, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, had := b.whitelist[value]
	delete(b.whitelist, value)
	if err := b.writeWhitelist(); err != nil {
		if had {
			b.whitelist[value] = struct{}{}
		}
		return err
	}
	return nil
}

func (b *FileBackend) writeMappings() error {
	data, err := json.MarshalIndent(b.overrides, "", "  ")
	if err != nil {
		return fmt.Errorf("encode overrides: %w", err)
	}
	return writeAtomic(b.mappingsPath, append(data, '\n'))
}

func (b *FileBackend) writeWhitelist() error {
	values := make([]string, 0, len(b.whitelist))
	for k := range b.whitelist {
		values = append(values, k)
	}
	sort.Strings(values)

	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(v)
		sb.WriteByte('\n')
	}
	return writeAtomic(b.whitelistPath, []byte(sb.String()))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
