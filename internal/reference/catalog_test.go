package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/record-cleaner-service/internal/domain"
	"github.com/helixir/record-cleaner-service/internal/observability"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInit_LoadsSources(t *testing.T) {
	dir := t.TempDir()
	countries := writeFile(t, dir, "countries.csv", "code,country\nIN,India\nUS,USA\n")
	cities := writeFile(t, dir, "cities.txt", "# major cities\nBoston\nParis\n")

	cat := Init(context.Background(), Config{
		Sources: map[domain.FieldType]Source{
			domain.FieldTypeCountry: {Path: countries, Column: "country"},
			domain.FieldTypeCity:    {Path: cities, Values: []string{"Lyon"}},
			domain.FieldTypeName:    {Values: []string{"John Smith"}},
		},
		CacheSize: 16,
	}, zerolog.Nop(), nil)

	assert.Equal(t, []string{"India", "USA"}, cat.For(domain.FieldTypeCountry).Values())
	assert.Equal(t, []string{"Boston", "Paris", "Lyon"}, cat.For(domain.FieldTypeCity).Values())
	assert.True(t, cat.For(domain.FieldTypeName).Contains("john smith"))
	assert.False(t, cat.LoadedAt().IsZero())
}

func TestInit_DegradesOnMissingFile(t *testing.T) {
	metrics := observability.NewMetrics("test_catalog_degrade")

	cat := Init(context.Background(), Config{
		Sources: map[domain.FieldType]Source{
			domain.FieldTypeCountry: {Path: "/nonexistent/countries.csv"},
		},
	}, zerolog.Nop(), metrics)

	ix := cat.For(domain.FieldTypeCountry)
	require.NotNil(t, ix)
	assert.Equal(t, 0, ix.Len())
	_, ok := ix.BestMatch("India", 0)
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReferenceLoadFailures.WithLabelValues("country")))
}

func TestInit_UnknownColumn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countries.csv", "name\nIndia\n")

	cat := Init(context.Background(), Config{
		Sources: map[domain.FieldType]Source{
			domain.FieldTypeCountry: {Path: path, Column: "country", Values: []string{"USA"}},
		},
	}, zerolog.Nop(), nil)

	assert.Equal(t, []string{"USA"}, cat.For(domain.FieldTypeCountry).Values())
}

func TestCatalog_ForUnconfigured(t *testing.T) {
	cat := Static(map[domain.FieldType][]string{domain.FieldTypeCountry: {"India"}})

	ix := cat.For(domain.FieldTypeCity)
	require.NotNil(t, ix)
	assert.Equal(t, 0, ix.Len())

	var nilCatalog *Catalog
	assert.Equal(t, 0, nilCatalog.For(domain.FieldTypeCity).Len())
}

func TestCatalog_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cities.txt", "Boston\n")

	cat := Init(context.Background(), Config{
		Sources: map[domain.FieldType]Source{domain.FieldTypeCity: {Path: path}},
	}, zerolog.Nop(), nil)
	before := cat.For(domain.FieldTypeCity)
	require.Equal(t, 1, before.Len())

	writeFile(t, dir, "cities.txt", "Boston\nChicago\n")
	summary := cat.Reload(context.Background())

	assert.Equal(t, 2, summary.Sets[domain.FieldTypeCity])
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 2, cat.For(domain.FieldTypeCity).Len())
	assert.Equal(t, 1, before.Len(), "previous snapshot is unchanged")
}

func TestCatalog_ConcurrentReadsDuringReload(t *testing.T) {
	cat := Static(map[domain.FieldType][]string{domain.FieldTypeCountry: {"India", "USA"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ix := cat.For(domain.FieldTypeCountry)
				assert.Equal(t, 2, ix.Len())
			}
		}()
	}
	for i := 0; i < 5; i++ {
		cat.Reload(context.Background())
	}
	wg.Wait()
}

func TestLoadValues(t *testing.T) {
	t.Run("inline only", func(t *testing.T) {
		values, err := LoadValues(context.Background(), "city", Source{Values: []string{"Boston"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Boston"}, values)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		values, err := LoadValues(ctx, "city", Source{Path: "cities.csv", Values: []string{"Boston"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrReferenceUnavailable))
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, []string{"Boston"}, values)
	})
}
