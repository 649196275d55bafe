package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/overrides"
)

// Compile-time interface verification.
var _ overrides.Backend = (*PgOverrideRepository)(nil)

// PgOverrideRepository stores overrides and whitelist entries in the
// overrides and whitelist tables. Keys are stored lowercased and trimmed.
type PgOverrideRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPgOverrideRepository creates a new PostgreSQL override repository.
func NewPgOverrideRepository(db DBTX) *PgOverrideRepository {
	return &PgOverrideRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Load reads every override and whitelist entry.
func (r *PgOverrideRepository) Load(ctx context.Context) (overrides.Snapshot, error) {
	snap := overrides.Snapshot{
		Overrides: make(map[string]domain.OverrideEntry),
		Whitelist: make(map[string]struct{}),
	}

	rows, err := r.db.Query(ctx, `
		SELECT raw, canonical, updated_at
		FROM overrides
		ORDER BY raw`)
	if err != nil {
		return overrides.Snapshot{}, fmt.Errorf("failed to query overrides: %w", err)
	}
	for rows.Next() {
		var e domain.OverrideEntry
		if err := rows.Scan(&e.Raw, &e.Canonical, &e.UpdatedAt); err != nil {
			rows.Close()
			return overrides.Snapshot{}, fmt.Errorf("failed to scan override: %w", err)
		}
		snap.Overrides[e.Raw] = e
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return overrides.Snapshot{}, fmt.Errorf("error iterating overrides: %w", err)
	}

	rows, err = r.db.Query(ctx, `SELECT value FROM whitelist ORDER BY value`)
	if err != nil {
		return overrides.Snapshot{}, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return overrides.Snapshot{}, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		snap.Whitelist[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return overrides.Snapshot{}, fmt.Errorf("error iterating whitelist: %w", err)
	}

	return snap, nil
}

// SaveOverride upserts entry; the last write for a raw key wins.
func (r *PgOverrideRepository) SaveOverride(ctx context.Context, entry domain.OverrideEntry) error {
	raw := domain.NormalizeKey(entry.Raw)
	if raw == "" {
		return domain.NewValidationError("raw", "must not be blank")
	}
	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}

	query := `
		INSERT INTO overrides (raw, canonical, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (raw) DO UPDATE SET
			canonical = EXCLUDED.canonical,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Exec(ctx, query, raw, entry.Canonical, updatedAt); err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override for raw. Deleting a missing key is a no-op.
func (r *PgOverrideRepository) DeleteOverride(ctx context.Context, raw string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM overrides WHERE raw = $1`, domain.NormalizeKey(raw)); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

// SaveWhitelist adds value to the whitelist.
func (r *PgOverrideRepository) SaveWhitelist(ctx context.Context, value string) error {
	key := domain.NormalizeKey(value)
	if key == "" {
		return domain.NewValidationError("value", "must not be blank")
	}

	query := `
		INSERT INTO whitelist (value, created_at)
		VALUES ($1, $2)
		ON CONFLICT (value) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, key, r.now()); err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}
	return nil
}

// DeleteWhitelist removes value from the whitelist.
func (r *PgOverrideRepository) DeleteWhitelist(ctx context.Context, value string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM whitelist WHERE value = $1`, domain.NormalizeKey(value)); err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	return nil
}
