// Package config provides configuration management for the record cleaner service.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/record-cleaner-service/internal/canonical"
	"github.com/helixir/record-cleaner-service/internal/changelog"
	"github.com/helixir/record-cleaner-service/internal/dedup"
	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/normalizer"
	"github.com/helixir/record-cleaner-service/internal/reference"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Override store backends.
const (
	OverridesBackendMemory   = "memory"
	OverridesBackendFile     = "file"
	OverridesBackendPostgres = "postgres"
)

// envPrefix prefixes every environment variable read by Load.
const envPrefix = "CLEANER"

// Config holds all configuration for the record cleaner service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// References lists the reference vocabularies.
	References ReferencesConfig `mapstructure:"references"`
	// Overrides selects where user overrides and the whitelist are kept.
	Overrides OverridesConfig `mapstructure:"overrides"`
	// Canonicalization contains cutoffs and column classification settings.
	Canonicalization CanonicalizationConfig `mapstructure:"canonicalization"`
	// Dedup contains duplicate detection defaults.
	Dedup DedupConfig `mapstructure:"dedup"`
	// Normalizer contains the external normalization service client settings.
	Normalizer normalizer.Config `mapstructure:"normalizer"`
	// ChangeLog selects the change-log sinks.
	ChangeLog ChangeLogConfig `mapstructure:"changelog"`
	// Kafka contains change-log publishing and listening settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes limits request bodies; tables are posted inline.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Enabled connects to PostgreSQL on startup. Required by the postgres
	// overrides backend and the repository change-log sink.
	Enabled bool `mapstructure:"enabled"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from CLEANER_DATABASE_PASSWORD only).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// ReferenceSetConfig describes one reference vocabulary.
type ReferenceSetConfig struct {
	// Path is a .csv, .xlsx or .txt file.
	Path string `mapstructure:"path"`
	// Column selects the vocabulary column of tabular files.
	Column string `mapstructure:"column"`
	// Values are inline entries added to the file's.
	Values []string `mapstructure:"values"`
}

// ReferencesConfig holds the reference vocabularies keyed by field type.
type ReferencesConfig struct {
	// CacheSize is the number of memoized fuzzy lookups per set.
	CacheSize int `mapstructure:"cache_size"`
	// Sets maps a reference field type (name, city, country) to its source.
	Sets map[string]ReferenceSetConfig `mapstructure:"sets"`
}

// OverridesConfig selects the override store backend.
type OverridesConfig struct {
	// Backend is memory, file or postgres.
	Backend string `mapstructure:"backend"`
	// MappingsPath is the JSON mappings file of the file backend.
	MappingsPath string `mapstructure:"mappings_path"`
	// WhitelistPath is the newline-separated whitelist file of the file backend.
	WhitelistPath string `mapstructure:"whitelist_path"`
}

// CanonicalizationConfig holds the canonicalization policy settings.
type CanonicalizationConfig struct {
	// Cutoffs maps a field type to its default fuzzy cutoff in [0, 100].
	Cutoffs map[string]float64 `mapstructure:"cutoffs"`
	// ServiceFieldTypes lists the field types sent to the normalization service.
	ServiceFieldTypes []string `mapstructure:"service_field_types"`
	// Classifier is the column classification keyword table.
	Classifier canonical.ClassifierConfig `mapstructure:"classifier"`
}

// DedupConfig holds duplicate detection defaults.
type DedupConfig struct {
	// Threshold is the default minimum pair score in [0, 100].
	Threshold float64 `mapstructure:"threshold"`
	// PrimaryWeight and SecondaryWeight must sum to 1.
	PrimaryWeight   float64 `mapstructure:"primary_weight"`
	SecondaryWeight float64 `mapstructure:"secondary_weight"`
	// MaxBucketSize skips larger buckets; 0 disables the cap.
	MaxBucketSize int `mapstructure:"max_bucket_size"`
	// SampleLimit scores the first rows of oversize buckets instead of skipping them.
	SampleLimit int `mapstructure:"sample_limit"`
	// Workers is the number of buckets scored concurrently.
	Workers int `mapstructure:"workers"`
}

// ChangeLogConfig selects the change-log sinks.
type ChangeLogConfig struct {
	// Sinks lists sink names: none, memory, file, kafka, repository.
	Sinks []string `mapstructure:"sinks"`
	// FilePath is the JSON lines file of the file sink.
	FilePath string `mapstructure:"file_path"`
}

// KafkaConfig holds Kafka settings for the change-log topic.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the change-log topic.
	Topic string `mapstructure:"topic"`
	// GroupID is the consumer group of the change-log listener.
	GroupID string `mapstructure:"group_id"`
	// ListenerEnabled starts a consumer archiving the topic into the repository sink.
	ListenerEnabled bool `mapstructure:"listener_enabled"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// CatalogConfig converts the reference sets into a catalog configuration.
func (c *ReferencesConfig) CatalogConfig() (reference.Config, error) {
	sources := make(map[domain.FieldType]reference.Source, len(c.Sets))
	for name, set := range c.Sets {
		ft, err := domain.ParseFieldType(name)
		if err != nil {
			return reference.Config{}, err
		}
		if !ft.IsReference() {
			return reference.Config{}, fmt.Errorf("field type %q has no reference vocabulary", name)
		}
		sources[ft] = reference.Source{Path: set.Path, Column: set.Column, Values: set.Values}
	}
	return reference.Config{Sources: sources, CacheSize: c.CacheSize}, nil
}

// Options converts the canonicalization settings. The normalizer is wired
// by the caller.
func (c *CanonicalizationConfig) Options() (canonical.Options, error) {
	opts := canonical.Options{Cutoffs: make(map[domain.FieldType]float64, len(c.Cutoffs))}
	for name, cutoff := range c.Cutoffs {
		ft, err := domain.ParseFieldType(name)
		if err != nil {
			return canonical.Options{}, err
		}
		opts.Cutoffs[ft] = cutoff
	}
	for _, name := range c.ServiceFieldTypes {
		ft, err := domain.ParseFieldType(name)
		if err != nil {
			return canonical.Options{}, err
		}
		opts.ServiceFieldTypes = append(opts.ServiceFieldTypes, ft)
	}
	return opts, nil
}

// DetectorOptions converts the dedup settings into detector options.
func (c *DedupConfig) DetectorOptions() dedup.DetectorOptions {
	return dedup.DetectorOptions{
		MaxBucketSize: c.MaxBucketSize,
		Workers:       c.Workers,
		SampleLimit:   c.SampleLimit,
	}
}

// Weights returns the configured pair score weights.
func (c *DedupConfig) Weights() dedup.Weights {
	return dedup.Weights{Primary: c.PrimaryWeight, Secondary: c.SecondaryWeight}
}

// SinkConfig combines the change-log and Kafka sections into a sink configuration.
func (c *Config) SinkConfig() changelog.Config {
	return changelog.Config{
		Sinks:    c.ChangeLog.Sinks,
		FilePath: c.ChangeLog.FilePath,
		Kafka:    c.KafkaSinkConfig(),
	}
}

// KafkaSinkConfig returns the Kafka settings of the change-log sink and listener.
func (c *Config) KafkaSinkConfig() changelog.KafkaConfig {
	return changelog.KafkaConfig{
		Brokers: c.Kafka.Brokers,
		Topic:   c.Kafka.Topic,
		GroupID: c.Kafka.GroupID,
	}
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations, where a missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/record-cleaner")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(envPrefix + "_DATABASE_PASSWORD")
	cfg.Normalizer.APIKey = os.Getenv(envPrefix + "_NORMALIZER_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 32<<20)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cleaner")
	v.SetDefault("database.name", "record_cleaner")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "record_cleaner")

	// Reference vocabularies
	v.SetDefault("references.cache_size", reference.DefaultCacheSize)
	v.SetDefault("references.sets", map[string]any{
		"name":    map[string]any{"path": "data/name_gender.csv", "column": "name"},
		"city":    map[string]any{"path": "data/world_cities.csv", "column": "city"},
		"country": map[string]any{"path": "data/countries.csv", "column": "country"},
	})

	// Overrides defaults
	v.SetDefault("overrides.backend", OverridesBackendFile)
	v.SetDefault("overrides.mappings_path", "data/user_mappings.json")
	v.SetDefault("overrides.whitelist_path", "data/whitelist.txt")

	// Canonicalization defaults
	cutoffs := make(map[string]any)
	for ft, cutoff := range canonical.DefaultCutoffs() {
		cutoffs[string(ft)] = cutoff
	}
	v.SetDefault("canonicalization.cutoffs", cutoffs)
	v.SetDefault("canonicalization.service_field_types", []string{"country", "city"})
	classifier := canonical.DefaultClassifierConfig()
	v.SetDefault("canonicalization.classifier.name_keywords", classifier.NameKeywords)
	v.SetDefault("canonicalization.classifier.country_keywords", classifier.CountryKeywords)
	v.SetDefault("canonicalization.classifier.city_keywords", classifier.CityKeywords)
	v.SetDefault("canonicalization.classifier.email_keywords", classifier.EmailKeywords)
	v.SetDefault("canonicalization.classifier.identifier_keywords", classifier.IdentifierKeywords)
	v.SetDefault("canonicalization.classifier.numeric_ratio", classifier.NumericRatio)
	v.SetDefault("canonicalization.classifier.max_avg_identifier_length", classifier.MaxAvgIdentifierLength)

	// Dedup defaults
	weights := dedup.DefaultWeights()
	v.SetDefault("dedup.threshold", dedup.DefaultThreshold)
	v.SetDefault("dedup.primary_weight", weights.Primary)
	v.SetDefault("dedup.secondary_weight", weights.Secondary)
	v.SetDefault("dedup.max_bucket_size", dedup.DefaultMaxBucketSize)
	v.SetDefault("dedup.sample_limit", 0)
	v.SetDefault("dedup.workers", 4)

	// Normalizer defaults. The API key is loaded from the environment only.
	nc := normalizer.DefaultConfig()
	v.SetDefault("normalizer.enabled", false)
	v.SetDefault("normalizer.base_url", "https://api.peopledatalabs.com/v5/cleaner")
	v.SetDefault("normalizer.api_key_header", "")
	v.SetDefault("normalizer.timeout", nc.Timeout.String())
	v.SetDefault("normalizer.rate_limit", nc.RateLimit)
	v.SetDefault("normalizer.burst_size", nc.BurstSize)
	v.SetDefault("normalizer.max_retries", nc.MaxRetries)
	v.SetDefault("normalizer.retry_delay", nc.RetryDelay.String())
	v.SetDefault("normalizer.user_agent", nc.UserAgent)

	// Change-log defaults
	v.SetDefault("changelog.sinks", []string{changelog.SinkFile})
	v.SetDefault("changelog.file_path", "data/change_log.jsonl")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.changelog.record_cleaner")
	v.SetDefault("kafka.group_id", "record-cleaner-archiver")
	v.SetDefault("kafka.listener_enabled", false)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if _, err := c.References.CatalogConfig(); err != nil {
		return fmt.Errorf("references: %w", err)
	}

	switch c.Overrides.Backend {
	case OverridesBackendMemory:
	case OverridesBackendFile:
		if c.Overrides.MappingsPath == "" || c.Overrides.WhitelistPath == "" {
			return fmt.Errorf("file overrides backend requires mappings_path and whitelist_path")
		}
	case OverridesBackendPostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("postgres overrides backend requires database.enabled")
		}
	default:
		return fmt.Errorf("invalid overrides backend: %q", c.Overrides.Backend)
	}

	if _, err := c.Canonicalization.Options(); err != nil {
		return fmt.Errorf("canonicalization: %w", err)
	}
	names := make([]string, 0, len(c.Canonicalization.Cutoffs))
	for name := range c.Canonicalization.Cutoffs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if cutoff := c.Canonicalization.Cutoffs[name]; math.IsNaN(cutoff) || cutoff <= 0 || cutoff > 100 {
			return fmt.Errorf("cutoff for %s must be in (0, 100], got %v", name, cutoff)
		}
	}
	if err := c.Canonicalization.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	if c.Dedup.Threshold < 0 || c.Dedup.Threshold > 100 {
		return fmt.Errorf("dedup threshold must be between 0 and 100")
	}
	if err := c.Dedup.Weights().Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if c.Dedup.MaxBucketSize != 0 && c.Dedup.MaxBucketSize < 2 {
		return fmt.Errorf("dedup max_bucket_size must be 0 or at least 2")
	}
	if c.Dedup.SampleLimit < 0 {
		return fmt.Errorf("dedup sample_limit must not be negative")
	}
	if c.Dedup.Workers < 1 {
		return fmt.Errorf("dedup workers must be at least 1")
	}

	if c.Normalizer.Enabled && c.Normalizer.BaseURL == "" {
		return fmt.Errorf("normalizer base_url is required when the normalizer is enabled")
	}

	for _, sink := range c.ChangeLog.Sinks {
		switch sink {
		case changelog.SinkNone, changelog.SinkMemory:
		case changelog.SinkFile:
			if c.ChangeLog.FilePath == "" {
				return fmt.Errorf("file change-log sink requires changelog.file_path")
			}
		case changelog.SinkKafka:
			if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
				return fmt.Errorf("kafka change-log sink requires kafka.brokers and kafka.topic")
			}
		case changelog.SinkRepository:
			if !c.Database.Enabled {
				return fmt.Errorf("repository change-log sink requires database.enabled")
			}
		default:
			return fmt.Errorf("invalid change-log sink: %q", sink)
		}
	}
	if c.Kafka.ListenerEnabled {
		if !c.Database.Enabled {
			return fmt.Errorf("kafka listener requires database.enabled")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka listener requires kafka.group_id")
		}
	}

	return nil
}
