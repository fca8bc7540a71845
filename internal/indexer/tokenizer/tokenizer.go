// Package tokenizer turns raw text into index terms. It lower-cases input,
// splits on word boundaries, keeps only ASCII alphanumeric tokens and removes
// stop-words. The same pipeline runs for documents and for queries.
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
)

var termPattern = regexp.MustCompile(`^[a-z0-9]+$`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is a single index term and its offset in the filtered term sequence.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lowercased Tokens with stop-words removed.
// Positions count surviving terms only, starting at 0.
func Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, isBoundary)
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if !termPattern.MatchString(word) {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: len(tokens),
		})
	}
	return tokens
}

// Terms returns just the term strings of Tokenize(text), in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// IsStopWord reports whether the lowercased word is dropped by Tokenize.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// isBoundary splits on anything that is not a Unicode letter, digit or
// underscore. A word containing a non-ASCII letter therefore stays whole and
// is then dropped by termPattern; it never yields an ASCII fragment.
func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
