// Package dedup finds candidate duplicate rows in a table.
//
// Rows are first partitioned into buckets by a block key built from short
// prefixes of one or more columns. Only rows sharing a bucket are ever
// compared, which bounds the work by bucket size instead of table size.
// Two true duplicates that differ in every key prefix are never compared;
// this recall loss is the price of blocking.
package dedup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

// KeySeparator joins the prefixes of a block key.
const KeySeparator = "|"

// BlockPart takes the first Prefix characters of Column.
type BlockPart struct {
	Column string `json:"column"`
	Prefix int    `json:"prefix"`
}

// BlockingRecipe describes how a block key is derived from a row.
type BlockingRecipe struct {
	Parts []BlockPart `json:"parts"`
}

// DefaultRecipe keys rows on the first letter of the primary column and
// the first three letters of the secondary column, if any.
func DefaultRecipe(primary, secondary string) BlockingRecipe {
	parts := []BlockPart{{Column: primary, Prefix: 1}}
	if secondary != "" {
		parts = append(parts, BlockPart{Column: secondary, Prefix: 3})
	}
	return BlockingRecipe{Parts: parts}
}

// ParseRecipe parses "column:prefix" parts separated by commas or pipes,
// e.g. "name:1,city:3".
func ParseRecipe(s string) (BlockingRecipe, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' })
	if len(fields) == 0 {
		return BlockingRecipe{}, domain.NewValidationError("blocking", "recipe is empty")
	}

	var recipe BlockingRecipe
	for _, f := range fields {
		col, n, ok := strings.Cut(strings.TrimSpace(f), ":")
		col = strings.TrimSpace(col)
		if !ok || col == "" {
			return BlockingRecipe{}, domain.NewValidationError("blocking", fmt.Sprintf("part %q must look like column:prefix", f))
		}
		prefix, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || prefix < 1 {
			return BlockingRecipe{}, domain.NewValidationError("blocking", fmt.Sprintf("part %q needs a positive prefix length", f))
		}
		recipe.Parts = append(recipe.Parts, BlockPart{Column: col, Prefix: prefix})
	}
	return recipe, nil
}

// String renders the recipe in the form accepted by ParseRecipe.
func (r BlockingRecipe) String() string {
	parts := make([]string, len(r.Parts))
	for i, p := range r.Parts {
		parts[i] = p.Column + ":" + strconv.Itoa(p.Prefix)
	}
	return strings.Join(parts, ",")
}

// Bucket is a set of rows sharing a block key. Rows are ascending.
type Bucket struct {
	Key  string `json:"key"`
	Rows []int  `json:"rows"`
}

// BlockingIndex assigns every row of a table to exactly one bucket.
type BlockingIndex struct {
	keys    []string
	buckets map[string][]int
	order   []string
}

// BuildBlockingIndex computes the block key of every row. Rows whose key
// columns are all empty share the degenerate key made of separators only.
func BuildBlockingIndex(t *domain.Table, recipe BlockingRecipe) (*BlockingIndex, error) {
	if t == nil {
		return nil, domain.NewInputError("table is nil")
	}
	if len(recipe.Parts) == 0 {
		return nil, domain.NewValidationError("blocking", "recipe has no parts")
	}

	cols := make([]int, len(recipe.Parts))
	for i, p := range recipe.Parts {
		idx, ok := t.ColumnIndex(p.Column)
		if !ok {
			return nil, domain.NewInputError("blocking column %q not found", p.Column)
		}
		if p.Prefix < 1 {
			return nil, domain.NewValidationError("blocking", fmt.Sprintf("prefix of %q must be positive", p.Column))
		}
		cols[i] = idx
	}

	ix := &BlockingIndex{
		keys:    make([]string, t.Len()),
		buckets: make(map[string][]int),
	}
	parts := make([]string, len(cols))
	for r := 0; r < t.Len(); r++ {
		for i, c := range cols {
			parts[i] = keyPrefix(t.At(r, c), recipe.Parts[i].Prefix)
		}
		key := strings.Join(parts, KeySeparator)
		ix.keys[r] = key
		if _, ok := ix.buckets[key]; !ok {
			ix.order = append(ix.order, key)
		}
		ix.buckets[key] = append(ix.buckets[key], r)
	}
	sort.Strings(ix.order)
	return ix, nil
}

func keyPrefix(c domain.Cell, n int) string {
	if c.IsMissing() {
		return ""
	}
	v := strings.ToLower(strings.Join(strings.Fields(c.String()), " "))
	r := []rune(v)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// Key returns the block key of row i.
func (ix *BlockingIndex) Key(i int) string {
	return ix.keys[i]
}

// Len returns the number of buckets.
func (ix *BlockingIndex) Len() int {
	return len(ix.order)
}

// Buckets returns every bucket ordered by key.
func (ix *BlockingIndex) Buckets() []Bucket {
	out := make([]Bucket, len(ix.order))
	for i, k := range ix.order {
		out[i] = Bucket{Key: k, Rows: append([]int(nil), ix.buckets[k]...)}
	}
	return out
}
