package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

func TestFormatName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "jon smith", want: "Jon Smith"},
		{in: "  JOHN   SMITH ", want: "John Smith"},
		{in: "ludwig VAN beethoven", want: "Ludwig van Beethoven"},
		{in: "de la cruz", want: "De la Cruz"},
		{in: "ronald mcdonald", want: "Ronald McDonald"},
		{in: "shaquille o'neal", want: "Shaquille O'Neal"},
		{in: "mary-jane watson", want: "Mary-Jane Watson"},
		{in: "john smith iii", want: "John Smith III"},
		{in: "élodie durand", want: "Élodie Durand"},
		{in: "j. r. tolkien", want: "J. R. Tolkien"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := FormatName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, FormatName(got), "FormatName must be idempotent")
		})
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "xyz123", want: "Xyz123"},
		{in: "new   york", want: "New York"},
		{in: "HELLO WORLD", want: "Hello World"},
		{in: "  ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := TitleCase(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, TitleCase(got))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "john@example.com", NormalizeEmail("  John@Example.COM "))
}

func TestDisplayForm(t *testing.T) {
	tests := []struct {
		name  string
		ft    domain.FieldType
		entry string
		want  string
	}{
		{name: "cased entry kept", ft: domain.FieldTypeCountry, entry: "USA", want: "USA"},
		{name: "mixed case kept", ft: domain.FieldTypeGeneric, entry: "iPhone", want: "iPhone"},
		{name: "lowercase city title-cased", ft: domain.FieldTypeCity, entry: "new york", want: "New York"},
		{name: "lowercase name formatted", ft: domain.FieldTypeName, entry: "ronald mcdonald", want: "Ronald McDonald"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayForm(tt.ft, tt.entry))
		})
	}
}
