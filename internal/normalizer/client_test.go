package normalizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

func newTestClient(t *testing.T, baseURL string, cfg Config, metrics *observability.Metrics) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
		cfg.BurstSize = 100
	}
	c, err := New(cfg, zerolog.Nop(), metrics)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		c, err := New(Config{BaseURL: "https://normalizer.example.com/clean"}, zerolog.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, 6*time.Second, c.cfg.Timeout)
		assert.Equal(t, 6*time.Second, c.http.client.Timeout)
		assert.Equal(t, "Helixir-RecordCleaner/1.0", c.cfg.UserAgent)
		assert.Equal(t, 0, c.cfg.MaxRetries)
	})

	t.Run("rejects invalid base URL", func(t *testing.T) {
		for _, u := range []string{"", "not a url", "/relative/path"} {
			_, err := New(Config{BaseURL: u}, zerolog.Nop(), nil)
			assert.ErrorIs(t, err, domain.ErrInvalidInput, u)
		}
	})
}

func TestClient_Normalize_ResponseShapes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{name: "cleaned string", body: `{"cleaned":"Mumbai"}`, want: "Mumbai", wantOK: true},
		{name: "result string", body: `{"result":"  Germany "}`, want: "Germany", wantOK: true},
		{name: "value string", body: `{"value":"Paris"}`, want: "Paris", wantOK: true},
		{name: "empty cleaned falls through", body: `{"cleaned":"","result":"Rome"}`, want: "Rome", wantOK: true},
		{name: "object with name", body: `{"cleaned":{"name":"New York","id":7}}`, want: "New York", wantOK: true},
		{name: "object with value", body: `{"result":{"value":"Boston"}}`, want: "Boston", wantOK: true},
		{name: "null", body: `{"cleaned":null}`, wantOK: false},
		{name: "number", body: `{"cleaned":42}`, wantOK: false},
		{name: "no known keys", body: `{"status":"ok"}`, wantOK: false},
		{name: "malformed", body: `{"cleaned":`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, Config{}, nil)
			got, ok := c.Normalize(context.Background(), "bombay", domain.FieldTypeCity)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_Normalize_Request(t *testing.T) {
	t.Run("query and header key", func(t *testing.T) {
		var query, apiKey, userAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			apiKey = r.Header.Get("X-Api-Key")
			userAgent = r.Header.Get("User-Agent")
			_, _ = w.Write([]byte(`{"cleaned":"India"}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL+"/clean", Config{APIKey: "secret", APIKeyHeader: "X-Api-Key"}, nil)
		got, ok := c.Normalize(context.Background(), "indya republic", domain.FieldTypeCountry)
		require.True(t, ok)
		assert.Equal(t, "India", got)
		assert.Equal(t, "type=country&value=indya+republic", query)
		assert.Equal(t, "secret", apiKey)
		assert.Equal(t, "Helixir-RecordCleaner/1.0", userAgent)
	})

	t.Run("query parameter key", func(t *testing.T) {
		var key string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key = r.URL.Query().Get("api_key")
			_, _ = w.Write([]byte(`{"cleaned":"India"}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, Config{APIKey: "secret"}, nil)
		_, ok := c.Normalize(context.Background(), "indya", domain.FieldTypeCountry)
		require.True(t, ok)
		assert.Equal(t, "secret", key)
	})

	t.Run("blank value skips the call", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, Config{}, nil)
		_, ok := c.Normalize(context.Background(), "   ", domain.FieldTypeCity)
		assert.False(t, ok)
		assert.Zero(t, calls.Load())
	})

	t.Run("nil client", func(t *testing.T) {
		var c *Client
		_, ok := c.Normalize(context.Background(), "x", domain.FieldTypeCity)
		assert.False(t, ok)
	})
}

func TestClient_Normalize_Failures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"cleaned":"ignored"}`))
		}))
		defer server.Close()

		metrics := observability.NewMetrics("test_normalizer_non_2xx")
		c := newTestClient(t, server.URL, Config{}, metrics)
		_, ok := c.Normalize(context.Background(), "bombay", domain.FieldTypeCity)
		assert.False(t, ok)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NormalizerRequests.WithLabelValues(outcomeError)))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		c := newTestClient(t, server.URL, Config{Timeout: 50 * time.Millisecond}, nil)
		start := time.Now()
		_, ok := c.Normalize(context.Background(), "bombay", domain.FieldTypeCity)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := newTestClient(t, url, Config{}, nil)
		_, ok := c.Normalize(context.Background(), "bombay", domain.FieldTypeCity)
		assert.False(t, ok)
	})
}

func TestClient_Normalize_Retries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"cleaned":"Mumbai"}`))
	}))
	defer server.Close()

	metrics := observability.NewMetrics("test_normalizer_retries")
	c := newTestClient(t, server.URL, Config{MaxRetries: 2, RetryDelay: 10 * time.Millisecond}, metrics)
	got, ok := c.Normalize(context.Background(), "bombay", domain.FieldTypeCity)
	require.True(t, ok)
	assert.Equal(t, "Mumbai", got)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.NormalizerRequests.WithLabelValues(outcomeSuggested)))
}

func TestHTTPClient_RetryDelayFor(t *testing.T) {
	c := newHTTPClient(Config{RetryDelay: time.Second, RateLimit: 1, BurstSize: 1})

	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{name: "absent", retryAfter: "", want: time.Second},
		{name: "seconds", retryAfter: "3", want: 3 * time.Second},
		{name: "zero seconds", retryAfter: "0", want: time.Second},
		{name: "garbage", retryAfter: "soon", want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}
			assert.Equal(t, tt.want, c.retryDelayFor(resp))
		})
	}
}
