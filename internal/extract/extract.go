// Package extract finds candidate restaurant names in Reddit text.
//
// A Tagger proposes named entities; the Extractor keeps the ones that look
// like restaurants: the right entity label, a capitalized first letter, not
// a known false positive, and a food word nearby.
package extract

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Extraction defaults.
const (
	DefaultContextRadius = 50
	MinNameLength        = 3
)

// FoodKeywords signal restaurant context. Matching is by substring on the
// lower-cased context window.
var FoodKeywords = []string{
	"restaurant", "cafe", "deli", "pizza", "burger", "sushi", "ramen",
	"taco", "bbq", "steakhouse", "bagel", "sandwich", "diner", "bakery",
	"bar", "pub", "bistro", "grill", "kitchen", "eatery", "joint",
	"brunch", "breakfast", "lunch", "dinner", "food", "eat", "meal",
}

// FalsePositives are entities that are never restaurants, compared
// lower-cased.
var FalsePositives = map[string]bool{
	"reddit": true, "edit": true, "update": true, "thanks": true,
	"yes": true, "no": true, "the": true, "this": true, "that": true,
	"google": true, "yelp": true, "uber": true, "doordash": true,
	"grubhub": true, "new york": true, "san francisco": true,
	"los angeles": true, "brooklyn": true, "manhattan": true,
}

var acceptedLabels = map[string]bool{
	LabelOrg:     true,
	LabelPerson:  true,
	LabelGPE:     true,
	LabelProduct: true,
}

// Candidate is a restaurant name found in a text.
type Candidate struct {
	Name       string
	NameNorm   string
	SourceText string
	// Context is the window of text around the first occurrence.
	Context string
}

// Extractor filters tagged entities down to restaurant candidates.
type Extractor struct {
	tagger Tagger
	radius int
}

// NewExtractor creates an Extractor. A nil tagger means HeuristicTagger.
func NewExtractor(tagger Tagger) *Extractor {
	if tagger == nil {
		tagger = HeuristicTagger{}
	}
	return &Extractor{tagger: tagger, radius: DefaultContextRadius}
}

// Candidates returns the distinct restaurant candidates in text, sorted by
// name.
func (e *Extractor) Candidates(text string) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate

	for _, ent := range e.tagger.Tag(text) {
		if !acceptedLabels[ent.Label] || ent.Text == "" {
			continue
		}
		if first, _ := utf8.DecodeRuneInString(ent.Text); !unicode.IsUpper(first) {
			continue
		}
		if FalsePositives[strings.ToLower(ent.Text)] {
			continue
		}

		context := window(text, ent.Start, ent.End, e.radius)
		if !hasFoodContext(context) {
			continue
		}

		name := NormalizeName(ent.Text)
		if utf8.RuneCountInString(name) < MinNameLength || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Candidate{
			Name:       name,
			NameNorm:   strings.ToLower(name),
			SourceText: text,
			Context:    context,
		})
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// NormalizeName removes every character that is not a letter, digit,
// underscore or whitespace, then trims the result.
func NormalizeName(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s))
}

func hasFoodContext(context string) bool {
	lower := strings.ToLower(context)
	for _, kw := range FoodKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// window returns text from radius runes before start to radius runes after
// end. Offsets are clamped to the text.
func window(text string, start, end, radius int) string {
	start = max(0, min(start, len(text)))
	end = max(start, min(end, len(text)))

	lo := start
	for i := 0; i < radius && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < radius && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return text[lo:hi]
}
