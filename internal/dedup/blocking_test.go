package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

func peopleTable(t *testing.T, rows ...[2]string) *domain.Table {
	t.Helper()
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		out[i] = domain.Row{cell(r[0]), cell(r[1])}
	}
	table, err := domain.NewTable([]string{"name", "city"}, out)
	require.NoError(t, err)
	return table
}

// cell maps "" to a missing cell.
func cell(s string) domain.Cell {
	if s == "" {
		return domain.MissingCell()
	}
	return domain.StringCell(s)
}

func TestParseRecipe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []BlockPart
		wantErr bool
	}{
		{
			name:  "comma separated",
			input: "name:1,city:3",
			want:  []BlockPart{{Column: "name", Prefix: 1}, {Column: "city", Prefix: 3}},
		},
		{
			name:  "pipe separated with spaces",
			input: " name : 2 | zip:5 ",
			want:  []BlockPart{{Column: "name", Prefix: 2}, {Column: "zip", Prefix: 5}},
		},
		{name: "empty", input: " , ", wantErr: true},
		{name: "missing prefix", input: "name", wantErr: true},
		{name: "zero prefix", input: "name:0", wantErr: true},
		{name: "non numeric prefix", input: "name:x", wantErr: true},
		{name: "missing column", input: ":3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRecipe(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Parts)
		})
	}
}

func TestBlockingRecipe_StringRoundTrip(t *testing.T) {
	t.Parallel()

	r := DefaultRecipe("name", "city")
	assert.Equal(t, "name:1,city:3", r.String())

	parsed, err := ParseRecipe(r.String())
	require.NoError(t, err)
	assert.Equal(t, r, parsed)

	assert.Equal(t, "name:1", DefaultRecipe("name", "").String())
}

func TestBuildBlockingIndex_Keys(t *testing.T) {
	t.Parallel()

	table := peopleTable(t,
		[2]string{"Jon Smith", "Boston"},
		[2]string{"John Smith", "  boston"},
		[2]string{"Émile Zola", "Paris"},
		[2]string{"", ""},
		[2]string{"al", "NY"},
	)
	ix, err := BuildBlockingIndex(table, DefaultRecipe("name", "city"))
	require.NoError(t, err)

	assert.Equal(t, "j|bos", ix.Key(0))
	assert.Equal(t, "j|bos", ix.Key(1))
	assert.Equal(t, "é|par", ix.Key(2))
	assert.Equal(t, "|", ix.Key(3))
	assert.Equal(t, "a|ny", ix.Key(4))
	assert.Equal(t, 4, ix.Len())
}

func TestBuildBlockingIndex_BucketsPartitionRows(t *testing.T) {
	t.Parallel()

	table := peopleTable(t,
		[2]string{"Mary", "Berlin"},
		[2]string{"mark", "berlin"},
		[2]string{"Anna", "Bern"},
		[2]string{"Ann", "Berlin"},
		[2]string{"Max", "Bremen"},
	)
	ix, err := BuildBlockingIndex(table, DefaultRecipe("name", "city"))
	require.NoError(t, err)

	buckets := ix.Buckets()
	seen := make(map[int]int)
	var keys []string
	for _, b := range buckets {
		keys = append(keys, b.Key)
		for k, r := range b.Rows {
			seen[r]++
			assert.Equal(t, b.Key, ix.Key(r))
			if k > 0 {
				assert.Less(t, b.Rows[k-1], r)
			}
		}
	}
	assert.Len(t, seen, table.Len())
	for r, n := range seen {
		assert.Equal(t, 1, n, "row %d", r)
	}
	assert.IsNonDecreasing(t, keys)
	assert.Equal(t, []string{"a|ber", "m|ber", "m|bre"}, keys)

	// Buckets returns copies.
	buckets[0].Rows[0] = 99
	assert.NotEqual(t, 99, ix.Buckets()[0].Rows[0])
}

func TestBuildBlockingIndex_NumericColumn(t *testing.T) {
	t.Parallel()

	table, err := domain.NewTable([]string{"zip"}, []domain.Row{
		{domain.NumberCell(10115)},
		{domain.NumberCell(10117)},
		{domain.NumberCell(20095)},
	})
	require.NoError(t, err)

	ix, err := BuildBlockingIndex(table, BlockingRecipe{Parts: []BlockPart{{Column: "zip", Prefix: 3}}})
	require.NoError(t, err)
	assert.Equal(t, ix.Key(0), ix.Key(1))
	assert.NotEqual(t, ix.Key(0), ix.Key(2))
}

func TestBuildBlockingIndex_Errors(t *testing.T) {
	t.Parallel()

	table := peopleTable(t, [2]string{"a", "b"})

	_, err := BuildBlockingIndex(nil, DefaultRecipe("name", ""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = BuildBlockingIndex(table, BlockingRecipe{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = BuildBlockingIndex(table, DefaultRecipe("surname", ""))
	var ie *domain.InputError
	assert.ErrorAs(t, err, &ie)

	_, err = BuildBlockingIndex(table, BlockingRecipe{Parts: []BlockPart{{Column: "name", Prefix: 0}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
