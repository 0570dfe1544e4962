// Package tags derives short labels, such as chat titles, from message text.
package tags

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TitleKeywords is the number of keywords joined into a derived chat title.
const TitleKeywords = 3

// maxFallbackTitleRunes bounds a title taken verbatim from the message.
const maxFallbackTitleRunes = 40

var stopwords = toSet(
	"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on",
	"at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its",
	"this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further",
	"than", "so", "such", "into", "about", "between", "through", "during", "before", "after",
	"above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don",
	"should", "now", "what", "which", "who", "whom", "whose", "when", "where", "why", "how",
	"do", "does", "did", "doing", "have", "has", "had", "having", "i", "me", "my", "we", "our",
	"you", "your", "he", "him", "his", "she", "her", "they", "them", "their", "there", "here",
	"not", "no", "all", "any", "some", "more", "most", "other", "only", "could", "would",
	"please", "tell", "let", "give", "know", "am", "im",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ExtractKeywords returns up to n keywords of text ranked by frequency, ties
// broken by first occurrence. Tokens are lower-cased runs of letters and digits
// of at least two runes; stopwords and pure numbers are dropped.
func ExtractKeywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	type keyword struct {
		word  string
		count int
		first int
	}
	seen := make(map[string]*keyword)
	var order []*keyword
	for i, tok := range tokens {
		if utf8.RuneCountInString(tok) < 2 || isNumber(tok) {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		if kw, ok := seen[tok]; ok {
			kw.count++
			continue
		}
		kw := &keyword{word: tok, count: 1, first: i}
		seen[tok] = kw
		order = append(order, kw)
	}

	slices.SortStableFunc(order, func(a, b *keyword) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return a.first - b.first
	})
	if len(order) > n {
		order = order[:n]
	}
	result := make([]string, len(order))
	for i, kw := range order {
		result[i] = kw.word
	}
	return result
}

// DeriveTitle builds a chat title from the first user message: its top keywords,
// capitalised, or the start of the text when no keyword survives. An empty
// result means the text had nothing usable.
func DeriveTitle(text string) string {
	keywords := ExtractKeywords(text, TitleKeywords)
	if len(keywords) > 0 {
		for i, kw := range keywords {
			keywords[i] = capitalize(kw)
		}
		return strings.Join(keywords, " ")
	}

	collapsed := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(collapsed) <= maxFallbackTitleRunes {
		return collapsed
	}
	return string([]rune(collapsed)[:maxFallbackTitleRunes])
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	return string(unicode.ToUpper(r)) + word[size:]
}

func isNumber(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
