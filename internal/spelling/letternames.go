package spelling

import "github.com/antzucaro/matchr"

// letterNames maps spoken English letter names, as ASR engines commonly
// render them, to the letter itself. Several entries are ordinary words
// ("see", "are", "you"), which is why alias expansion is opt-in: on chatty
// transcripts it injects letters that were never spelled.
var letterNames = map[string]string{
	"ay":     "a",
	"aye":    "a",
	"bee":    "b",
	"be":     "b",
	"cee":    "c",
	"see":    "c",
	"sea":    "c",
	"dee":    "d",
	"ee":     "e",
	"ef":     "f",
	"eff":    "f",
	"gee":    "g",
	"jee":    "g",
	"aitch":  "h",
	"haitch": "h",
	"eye":    "i",
	"jay":    "j",
	"kay":    "k",
	"el":     "l",
	"ell":    "l",
	"em":     "m",
	"en":     "n",
	"oh":     "o",
	"owe":    "o",
	"pee":    "p",
	"cue":    "q",
	"queue":  "q",
	"ar":     "r",
	"are":    "r",
	"es":     "s",
	"ess":    "s",
	"tee":    "t",
	"tea":    "t",
	"you":    "u",
	"yu":     "u",
	"vee":    "v",
	"ex":     "x",
	"why":    "y",
	"zee":    "z",
	"zed":    "z",
}

// maxLetterNameLen bounds the phonetic fallback: letter names are short, so
// longer tokens are never candidates.
const maxLetterNameLen = 6

// letterNameCodes maps Double Metaphone codes of the names above to their
// letter, so near-spellings ("bea", "kaye") still resolve. Codes shared by
// names of different letters are dropped as ambiguous.
var letterNameCodes = buildLetterNameCodes()

func buildLetterNameCodes() map[string]string {
	codes := make(map[string]string)
	ambiguous := make(map[string]bool)
	for name, letter := range letterNames {
		primary, secondary := matchr.DoubleMetaphone(name)
		for _, code := range []string{primary, secondary} {
			if code == "" {
				continue
			}
			if existing, ok := codes[code]; ok && existing != letter {
				ambiguous[code] = true
				continue
			}
			codes[code] = letter
		}
	}
	for code := range ambiguous {
		delete(codes, code)
	}
	return codes
}

// aliasLetterName resolves a token that is a spoken letter name to the
// letter it names. The exact table is consulted first, then a Double
// Metaphone lookup for near-spellings.
func aliasLetterName(tok string) (string, bool) {
	if letter, ok := letterNames[tok]; ok {
		return letter, true
	}
	if len(tok) > maxLetterNameLen {
		return "", false
	}
	primary, secondary := matchr.DoubleMetaphone(tok)
	if letter, ok := letterNameCodes[primary]; ok {
		return letter, true
	}
	if secondary != "" {
		if letter, ok := letterNameCodes[secondary]; ok {
			return letter, true
		}
	}
	return "", false
}

// expandLetterNames rewrites spoken letter names in tokens to the letters
// they name, skipping tokens equal to the target word so "bee b e e bee"
// keeps its anchors when the target itself is a letter name. The token pair
// ("double", "u") and friends become "w". Returns the rewritten slice and
// the number of tokens changed.
func expandLetterNames(tokens []string, target string) ([]string, int) {
	out := make([]string, 0, len(tokens))
	changed := 0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == target {
			out = append(out, tok)
			continue
		}
		if tok == "double" && i+1 < len(tokens) {
			if next := tokens[i+1]; next == "u" || next == "you" || next == "yu" {
				out = append(out, "w")
				changed++
				i++
				continue
			}
		}
		if isLetterToken(tok) {
			out = append(out, tok)
			continue
		}
		if letter, ok := aliasLetterName(tok); ok {
			out = append(out, letter)
			changed++
			continue
		}
		out = append(out, tok)
	}
	return out, changed
}
