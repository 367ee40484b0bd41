package spelling

import (
	"strings"
	"unicode"
)

// tokenize splits a transcript into normalized tokens. Token boundaries are
// whitespace, hyphens, commas, and periods: ASR engines render spelled
// letters as any of "c a t", "c-a-t", "C, A, T" or "c. a. t.". Tokens are
// lower-cased with punctuation stripped; empty tokens are dropped.
func tokenize(transcript string) []string {
	fields := strings.FieldsFunc(transcript, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == ',' || r == '.'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if tok := normalizeToken(f); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// normalizeToken lower-cases s and strips everything that is not a letter or
// digit, so "Cat!" and "cat" compare equal.
func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isLetterToken reports whether tok is a single spelled letter.
func isLetterToken(tok string) bool {
	return len(tok) == 1 && tok[0] >= 'a' && tok[0] <= 'z'
}
