// Package engine assembles the canonicalization and duplicate detection
// components from configuration. The HTTP server and the cleaner CLI share
// one Engine so both surfaces behave identically.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/canonical"
	"github.com/helixir/record-cleaner-service/internal/changelog"
	"github.com/helixir/record-cleaner-service/internal/config"
	"github.com/helixir/record-cleaner-service/internal/database"
	"github.com/helixir/record-cleaner-service/internal/dedup"
	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/normalizer"
	"github.com/helixir/record-cleaner-service/internal/observability"
	"github.com/helixir/record-cleaner-service/internal/overrides"
	"github.com/helixir/record-cleaner-service/internal/reference"
	"github.com/helixir/record-cleaner-service/internal/repository"
)

// Engine holds the wired service components.
type Engine struct {
	Catalog       *reference.Catalog
	Overrides     *overrides.Store
	Canonicalizer *canonical.Canonicalizer
	Tables        *canonical.TableCanonicalizer
	Detector      *dedup.Detector
	Sink          changelog.Sink

	// Normalizer is nil when the normalization service is disabled.
	Normalizer *normalizer.Client
	// DB and ChangeLog are nil unless database.enabled is set.
	DB        *database.DB
	ChangeLog *repository.PgChangeLogRepository

	dedupCfg   config.DedupConfig
	sinkCloser io.Closer
	logger     zerolog.Logger
}

// New builds an Engine. When the database is enabled it is connected and,
// if configured, migrated before anything reads from it.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	e := &Engine{
		dedupCfg: cfg.Dedup,
		logger:   logger.With().Str("component", "engine").Logger(),
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		e.DB = db
		if cfg.Database.MigrationAutoRun {
			if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
				e.Close()
				return nil, err
			}
		}
		e.ChangeLog = repository.NewPgChangeLogRepository(db)
	}

	catalogCfg, err := cfg.References.CatalogConfig()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("invalid reference configuration: %w", err)
	}
	e.Catalog = reference.Init(ctx, catalogCfg, logger, metrics)

	backend, err := e.overridesBackend(cfg.Overrides)
	if err != nil {
		e.Close()
		return nil, err
	}
	store, err := overrides.New(ctx, backend, logger, metrics)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	e.Overrides = store

	opts, err := cfg.Canonicalization.Options()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("invalid canonicalization configuration: %w", err)
	}
	if cfg.Normalizer.Enabled {
		client, err := normalizer.New(cfg.Normalizer, logger, metrics)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create normalizer client: %w", err)
		}
		e.Normalizer = client
		opts.Normalizer = client
	}
	e.Canonicalizer = canonical.New(e.Catalog, e.Overrides, opts, logger, metrics)

	deps := changelog.Deps{}
	if e.ChangeLog != nil {
		deps.Repository = e.ChangeLog
	}
	sink, closer, err := changelog.NewFromConfig(cfg.SinkConfig(), deps)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create change-log sink: %w", err)
	}
	e.Sink = sink
	e.sinkCloser = closer

	classifier := canonical.NewColumnClassifier(cfg.Canonicalization.Classifier)
	e.Tables = canonical.NewTableCanonicalizer(e.Canonicalizer, classifier, sink, logger, metrics)
	e.Detector = dedup.NewDetector(cfg.Dedup.DetectorOptions(), logger, metrics)

	e.logger.Info().
		Str("overrides_backend", cfg.Overrides.Backend).
		Strs("changelog_sinks", cfg.ChangeLog.Sinks).
		Bool("database", e.DB != nil).
		Bool("normalizer", e.Normalizer != nil).
		Msg("engine initialized")

	return e, nil
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (e *Engine) overridesBackend(cfg config.OverridesConfig) (overrides.Backend, error) {
	switch cfg.Backend {
	case config.OverridesBackendMemory:
		return overrides.NewMemoryBackend(nil), nil
	case config.OverridesBackendFile:
		return overrides.NewFileBackend(cfg.MappingsPath, cfg.WhitelistPath), nil
	case config.OverridesBackendPostgres:
		if e.DB == nil {
			return nil, errors.New("postgres overrides backend requires a database")
		}
		return repository.NewPgOverrideRepository(e.DB), nil
	default:
		return nil, fmt.Errorf("unknown overrides backend %q", cfg.Backend)
	}
}

// DuplicateRequest selects the fields of a detection run. Nil pointers
// fall back to the configured defaults.
type DuplicateRequest struct {
	Primary   string
	Secondary string
	// Blocking is a recipe such as "name:1,city:3". Empty derives it from the fields.
	Blocking        string
	Threshold       *float64
	PreferCanonical *bool
	NameMatching    *bool
}

// DetectDuplicates runs the duplicate detector with the configured weights.
func (e *Engine) DetectDuplicates(ctx context.Context, t *domain.Table, req DuplicateRequest) (*dedup.Report, error) {
	fc := dedup.DefaultFieldConfig(req.Primary, req.Secondary)
	fc.Weights = e.dedupCfg.Weights()
	if req.Blocking != "" {
		recipe, err := dedup.ParseRecipe(req.Blocking)
		if err != nil {
			return nil, err
		}
		fc.Recipe = recipe
	}
	if req.PreferCanonical != nil {
		fc.PreferCanonical = *req.PreferCanonical
	}
	if req.NameMatching != nil {
		fc.NameMatching = *req.NameMatching
	}

	threshold := e.dedupCfg.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	return e.Detector.Detect(ctx, t, fc, threshold)
}

// Reload re-reads the reference vocabularies and the override store.
func (e *Engine) Reload(ctx context.Context) (reference.LoadSummary, error) {
	summary := e.Catalog.Reload(ctx)
	if err := e.Overrides.Reload(ctx); err != nil {
		return summary, fmt.Errorf("failed to reload overrides: %w", err)
	}
	return summary, nil
}

// Ready reports whether the engine's dependencies can serve requests.
func (e *Engine) Ready(ctx context.Context) error {
	if e.DB == nil {
		return nil
	}
	if status := e.DB.Health(ctx); !status.Healthy() {
		return fmt.Errorf("%w: database %s", domain.ErrServiceUnavailable, status.Error)
	}
	return nil
}

// Close releases the change-log sinks and the database pool.
func (e *Engine) Close() {
	if e.sinkCloser != nil {
		if err := e.sinkCloser.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to close change-log sink")
		}
		e.sinkCloser = nil
	}
	if e.DB != nil {
		e.DB.Close()
		e.DB = nil
	}
}
