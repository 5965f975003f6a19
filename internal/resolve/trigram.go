package resolve

import (
	"context"
	"strings"
	"unicode"
)

// Trigrams returns the set of trigrams pg_trgm extracts from s: the text is
// lower-cased and split into alphanumeric words, each word is padded with two
// spaces in front and one behind, and every three-rune window is taken.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity is the pg_trgm similarity of a and b: shared trigrams over the
// size of the union. Two strings without trigrams have similarity 0.
func Similarity(a, b string) float64 {
	return jaccard(Trigrams(a), Trigrams(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// Place is a resolvable place.
type Place struct {
	ID       string
	NameNorm string
}

type indexedPlace struct {
	id       string
	trigrams map[string]struct{}
}

// TrigramIndex resolves names against an in-memory place list.
type TrigramIndex struct {
	threshold float64
	places    []indexedPlace
	// postings maps a trigram to the positions of places containing it.
	postings map[string][]int
}

// NewTrigramIndex builds an index. A threshold of zero or less uses
// DefaultThreshold.
func NewTrigramIndex(places []Place, threshold float64) *TrigramIndex {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	idx := &TrigramIndex{
		threshold: threshold,
		places:    make([]indexedPlace, 0, len(places)),
		postings:  make(map[string][]int),
	}
	for _, p := range places {
		tg := Trigrams(p.NameNorm)
		pos := len(idx.places)
		idx.places = append(idx.places, indexedPlace{id: p.ID, trigrams: tg})
		for t := range tg {
			idx.postings[t] = append(idx.postings[t], pos)
		}
	}
	return idx
}

// Resolve implements Resolver. Ties on similarity go to the lower place id.
func (idx *TrigramIndex) Resolve(_ context.Context, nameNorm string) (string, bool, error) {
	query := Trigrams(nameNorm)

	candidates := make(map[int]struct{})
	for t := range query {
		for _, pos := range idx.postings[t] {
			candidates[pos] = struct{}{}
		}
	}

	bestID, bestSim, found := "", 0.0, false
	for pos := range candidates {
		p := idx.places[pos]
		sim := jaccard(query, p.trigrams)
		if sim <= idx.threshold {
			continue
		}
		if !found || sim > bestSim || (sim == bestSim && p.id < bestID) {
			bestID, bestSim, found = p.id, sim, true
		}
	}
	return bestID, found, nil
}

// Len returns the number of indexed places.
func (idx *TrigramIndex) Len() int {
	return len(idx.places)
}
