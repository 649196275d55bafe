// Package normalizer is a client for an external value normalization
// service. The service is advisory: every failure collapses to "no
// suggestion" so canonicalization never depends on it being reachable.
package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

const (
	serviceName     = "normalizer"
	maxResponseSize = 1 << 20

	outcomeSuggested = "suggested"
	outcomeEmpty     = "empty"
	outcomeError     = "error"
)

// responseKeys are tried in order; the first non-empty one wins.
var responseKeys = []string{"cleaned", "result", "value"}

// Config configures the normalization client.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`

	// APIKey is loaded from CLEANER_NORMALIZER_API_KEY only.
	APIKey string `mapstructure:"-"`
	// APIKeyHeader carries the key when set; otherwise it is sent as the
	// api_key query parameter.
	APIKeyHeader string `mapstructure:"api_key_header"`

	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	BurstSize  int           `mapstructure:"burst_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    6 * time.Second,
		RateLimit:  5,
		BurstSize:  5,
		RetryDelay: 200 * time.Millisecond,
		UserAgent:  "Helixir-RecordCleaner/1.0",
	}
}

// Client calls the normalization service. It implements canonical.Normalizer
// and is safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *httpClient
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates a Client. Zero-valued settings take their defaults.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) (*Client, error) {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = def.BurstSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, domain.NewValidationError("normalizer.base_url", fmt.Sprintf("invalid URL %q", cfg.BaseURL))
	}

	return &Client{
		cfg:     cfg,
		baseURL: u,
		http:    newHTTPClient(cfg),
		logger:  logger.With().Str("component", "normalizer").Logger(),
		metrics: metrics,
	}, nil
}

// Normalize asks the service for a normalized form of value. It returns
// false when the service has no suggestion or cannot be reached within
// the configured timeout.
func (c *Client) Normalize(ctx context.Context, value string, ft domain.FieldType) (string, bool) {
	if c == nil || strings.TrimSpace(value) == "" {
		return "", false
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	suggestion, err := c.lookup(ctx, value, ft)
	elapsed := time.Since(start).Seconds()
	switch {
	case err != nil:
		c.metrics.RecordNormalizerRequest(outcomeError, elapsed)
		c.logger.Debug().Err(err).Str("field_type", string(ft)).Msg("normalization service unavailable")
		return "", false
	case suggestion == "":
		c.metrics.RecordNormalizerRequest(outcomeEmpty, elapsed)
		return "", false
	default:
		c.metrics.RecordNormalizerRequest(outcomeSuggested, elapsed)
		return suggestion, true
	}
}

func (c *Client) lookup(ctx context.Context, value string, ft domain.FieldType) (string, error) {
	u := *c.baseURL
	q := u.Query()
	q.Set("value", value)
	if ft != "" {
		q.Set("type", string(ft))
	}
	if c.cfg.APIKey != "" && c.cfg.APIKeyHeader == "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" && c.cfg.APIKeyHeader != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.http.do(req)
	if err != nil {
		return "", domain.NewExternalServiceError(serviceName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", domain.NewExternalServiceError(serviceName, resp.StatusCode, "unexpected status", nil)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return "", domain.NewExternalServiceError(serviceName, resp.StatusCode, "malformed response", err)
	}
	return extractSuggestion(body), nil
}

// extractSuggestion reads the first non-empty of the response keys. A key
// may hold a string or an object carrying "name" or "value".
func extractSuggestion(body map[string]json.RawMessage) string {
	for _, key := range responseKeys {
		raw, ok := body[key]
		if !ok {
			continue
		}
		if s := stringOrNested(raw); s != "" {
			return s
		}
	}
	return ""
}

func stringOrNested(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"name", "value"} {
		if v, ok := obj[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
