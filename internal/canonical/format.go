package canonical

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/helixir/record-cleaner-service/internal/domain"
)

// nameParticles stay lowercase inside a name ("Ludwig van Beethoven").
// A particle that opens the name is capitalized.
var nameParticles = map[string]struct{}{
	"van": {}, "von": {}, "de": {}, "da": {}, "di": {}, "del": {}, "della": {},
	"der": {}, "den": {}, "du": {}, "la": {}, "le": {}, "dos": {}, "das": {},
}

// generationalSuffixes are written in upper case ("John Smith III").
var generationalSuffixes = map[string]struct{}{
	"ii": {}, "iii": {}, "iv": {},
}

// CollapseSpace trims s and replaces inner runs of whitespace with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleCase upper-cases the first letter of every word and lower-cases the rest.
func TitleCase(s string) string {
	s = CollapseSpace(s)
	if s == "" {
		return ""
	}
	// Casers keep state and must not be shared between goroutines.
	return cases.Title(language.Und).String(s)
}

// FormatName applies personal name capitalization:
//   - words are capitalized, the rest of each word lower-cased
//   - particles such as "van" or "de" stay lower-case unless they open the name
//   - "Mc" prefixes and apostrophes start a new capital ("McDonald", "O'Neil")
//   - hyphenated parts are capitalized independently ("Mary-Jane")
//
// FormatName is idempotent.
func FormatName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		if _, ok := nameParticles[lower]; ok && i > 0 {
			words[i] = lower
			continue
		}
		if _, ok := generationalSuffixes[lower]; ok && i > 0 {
			words[i] = strings.ToUpper(lower)
			continue
		}
		words[i] = formatNameWord(lower)
	}
	return strings.Join(words, " ")
}

func formatNameWord(lower string) string {
	hyphenated := strings.Split(lower, "-")
	for i, part := range hyphenated {
		quoted := strings.Split(part, "'")
		for j, q := range quoted {
			quoted[j] = capitalizeNamePart(q)
		}
		hyphenated[i] = strings.Join(quoted, "'")
	}
	return strings.Join(hyphenated, "-")
}

func capitalizeNamePart(lower string) string {
	r := []rune(lower)
	if len(r) > 2 && r[0] == 'm' && r[1] == 'c' {
		return "Mc" + capitalize(string(r[2:]))
	}
	return capitalize(lower)
}

func capitalize(lower string) string {
	r := []rune(lower)
	for i, c := range r {
		if unicode.IsLetter(c) {
			r[i] = unicode.ToUpper(c)
			break
		}
	}
	return string(r)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Format applies the fallback normalization of a field type.
func Format(ft domain.FieldType, s string) string {
	switch ft {
	case domain.FieldTypeName:
		return FormatName(s)
	case domain.FieldTypeEmail:
		return NormalizeEmail(s)
	default:
		return TitleCase(s)
	}
}

// DisplayForm returns how a reference entry is presented. Entries that
// carry their own casing ("USA", "iPhone") are kept verbatim; all-lowercase
// entries get the field type's formatting.
func DisplayForm(ft domain.FieldType, entry string) string {
	if hasUpper(entry) {
		return CollapseSpace(entry)
	}
	return Format(ft, entry)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
