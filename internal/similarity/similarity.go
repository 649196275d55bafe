// Package similarity provides the string similarity scorers shared by
// reference lookup and duplicate scoring.
//
// All scorers return a value in [0, 100]. Inputs are pre-processed by
// Process, so comparisons ignore case, accents, punctuation and extra
// whitespace. Every scorer is symmetric and safe for concurrent use.
package similarity

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Scorer compares two strings and returns a similarity in [0, 100].
type Scorer func(a, b string) float64

const (
	winklerPrefixScale = 0.1
	winklerMaxPrefix   = 4

	tokenScale          = 0.95
	partialScale        = 0.9
	longPartialScale    = 0.6
	partialLengthRatio  = 1.5
	longPartialMinRatio = 8.0
)

// Process lowercases s, strips accents, replaces anything that is not a
// letter or digit with a space and collapses runs of whitespace.
func Process(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// WRatio is the weighted composite scorer. It takes the best of the plain
// ratio, the token ratios scaled by 0.95 and, for strings of clearly
// different length, the partial ratios scaled by 0.9 (0.6 when one string
// is at least eight times longer).
func WRatio(a, b string) float64 {
	return wratio(Process(a), Process(b))
}

// WRatioProcessed is WRatio for inputs that already went through Process.
func WRatioProcessed(a, b string) float64 {
	return wratio(a, b)
}

func wratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	lengthRatio := float64(max(la, lb)) / float64(min(la, lb))

	best := ratio(a, b)
	if lengthRatio < partialLengthRatio {
		best = max(best, tokenSortRatio(a, b)*tokenScale, tokenSetRatio(a, b)*tokenScale)
		return clamp(best)
	}

	scale := partialScale
	if lengthRatio >= longPartialMinRatio {
		scale = longPartialScale
	}
	best = max(best, partialRatio(a, b)*scale)
	best = max(best, partialRatio(sortTokens(a), sortTokens(b))*tokenScale*scale)
	return clamp(best)
}

// Ratio returns the better of the normalized Levenshtein similarity and the
// Jaro-Winkler similarity of the processed inputs.
func Ratio(a, b string) float64 {
	return ratio(Process(a), Process(b))
}

func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	if a > b {
		a, b = b, a
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	dist := levenshtein.ComputeDistance(a, b)
	lev := 100 * (1 - float64(dist)/float64(maxLen))

	return clamp(max(lev, 100*jaroWinkler(ra, rb)))
}

// PartialRatio compares the shorter string against every window of the
// longer string of the same length and returns the best ratio.
func PartialRatio(a, b string) float64 {
	return partialRatio(Process(a), Process(b))
}

func partialRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) || (len(short) == len(long) && a > b) {
		short, long = long, short
	}
	if len(short) == len(long) {
		return ratio(string(short), string(long))
	}

	s := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		score := ratio(s, string(long[i:i+len(short)]))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the inputs after sorting their tokens.
func TokenSortRatio(a, b string) float64 {
	return tokenSortRatio(Process(a), Process(b))
}

func tokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

// TokenSetRatio compares the shared tokens of both inputs against each
// input's remaining tokens, so extra words on one side cost little.
func TokenSetRatio(a, b string) float64 {
	return tokenSetRatio(Process(a), Process(b))
}

func tokenSetRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	setA, setB := tokenSet(a), tokenSet(b)

	var common, onlyA, onlyB []string
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if _, ok := setA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(common, " ")
	combinedA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	return max(ratio(sect, combinedA), ratio(sect, combinedB), ratio(combinedA, combinedB))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// jaroWinkler returns the Jaro-Winkler similarity in [0, 1].
func jaroWinkler(a, b []rune) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))
	matches := 0
	for i := range a {
		start := max(0, i-window)
		end := min(len(b), i+window+1)
		for j := start; j < end; j++ {
			if matchedB[j] || a[i] != b[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range a {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions)/2)/m) / 3

	prefix := 0
	for i := 0; i < min(len(a), len(b), winklerMaxPrefix); i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*winklerPrefixScale*(1-jaro)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
