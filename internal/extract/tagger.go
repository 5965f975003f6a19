package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entity labels understood by the extractor.
const (
	LabelOrg     = "ORG"
	LabelPerson  = "PERSON"
	LabelGPE     = "GPE"
	LabelProduct = "PRODUCT"
)

// Entity is a tagged span of text. Start and End are byte offsets into the
// tagged text, End exclusive.
type Entity struct {
	Text  string
	Label string
	Start int
	End   int
}

// Tagger finds named entities in text.
type Tagger interface {
	Tag(text string) []Entity
}

// leadingStopwords are capitalized only because they open a sentence.
var leadingStopwords = map[string]bool{
	"a": true, "also": true, "an": true, "and": true, "but": true,
	"i": true, "if": true, "it": true, "my": true, "so": true,
	"the": true, "this": true, "that": true, "we": true, "you": true,
}

// connectors may sit inside a multi-word name.
var connectors = map[string]bool{
	"&":  true,
	"of": true,
}

// HeuristicTagger labels every run of capitalized words as an ORG.
type HeuristicTagger struct{}

type token struct {
	text       string
	start, end int
}

func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{text[start:i], start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text[start:], start, len(text)})
	}
	return tokens
}

func isCapitalized(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

// trimToken removes surrounding punctuation and reports whether the token
// closes a clause.
func trimToken(t token) (token, bool) {
	closes := false
	for len(t.text) > 0 {
		r, size := utf8.DecodeLastRuneInString(t.text)
		if !unicode.IsPunct(r) || r == '&' || r == '\'' {
			break
		}
		if strings.ContainsRune(".,!?;:)", r) {
			closes = true
		}
		t.text = t.text[:len(t.text)-size]
		t.end -= size
	}
	for len(t.text) > 0 {
		r, size := utf8.DecodeRuneInString(t.text)
		if !unicode.IsPunct(r) || r == '&' {
			break
		}
		t.text = t.text[size:]
		t.start += size
	}
	return t, closes
}

// Tag implements Tagger.
func (HeuristicTagger) Tag(text string) []Entity {
	var entities []Entity
	var run []token

	emit := func() {
		for len(run) > 0 && (leadingStopwords[strings.ToLower(run[0].text)] || connectors[run[0].text]) {
			run = run[1:]
		}
		for len(run) > 0 && connectors[run[len(run)-1].text] {
			run = run[:len(run)-1]
		}
		if len(run) > 0 {
			start, end := run[0].start, run[len(run)-1].end
			entities = append(entities, Entity{
				Text:  text[start:end],
				Label: LabelOrg,
				Start: start,
				End:   end,
			})
		}
		run = run[:0]
	}

	for _, raw := range tokenize(text) {
		t, closes := trimToken(raw)
		switch {
		case t.text == "":
			emit()
			continue
		case isCapitalized(t.text):
			run = append(run, t)
		case connectors[t.text] && len(run) > 0:
			run = append(run, t)
		default:
			emit()
			continue
		}
		if closes {
			emit()
		}
	}
	emit()
	return entities
}
