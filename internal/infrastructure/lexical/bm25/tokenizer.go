package bm25

import (
	"strings"

	"github.com/kljensen/snowball/english"
)

// English stop set applied at index and query time, before stemming.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "such": {}, "that": {}, "the": {}, "their": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// tokenize lower-cases s, splits it on non-alphanumerics, strips possessive
// 's, drops stop words and reduces every remaining token to its English stem.
func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	runes := []rune(strings.ToLower(s))
	out := make([]string, 0, 24)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		token := b.String()
		b.Reset()
		if _, stop := stopWords[token]; stop {
			return
		}
		out = append(out, english.Stem(token, true))
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if isTokenRune(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 && isApostrophe(r) && i+1 < len(runes) && runes[i+1] == 's' &&
			(i+2 == len(runes) || !isTokenRune(runes[i+2])) {
			i++
		}
		flush()
	}
	flush()
	return out
}

func isTokenRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '\u2019' || r == '\uff07'
}
