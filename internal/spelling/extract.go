// Package spelling extracts a spelled-out letter sequence from an ASR
// transcript of the pattern "word, letters, word" ("cat, c a t, cat").
//
// The transcript is tokenized and searched for up to two occurrences of the
// target word, the anchors, trying exact matches before fuzzy ones. Letters
// are then collected by priority: between two anchors, else the run
// immediately after a single anchor, else the longest run of single-letter
// tokens anywhere. Confidence scores how much of that structure was found,
// from 100 for a clean two-anchor match with the expected letter count down
// to 0 when nothing usable was said.
//
// Extraction is pure string work: it never inspects audio and never decides
// whether the spelling is correct, only what was spelled. An Extractor is
// read-only after construction and safe for concurrent use.
package spelling

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// IssueNoLetters is reported when no single-letter tokens could be
// extracted. A Result carrying it has an empty Spelling and never validates.
const IssueNoLetters = "no letter sequence found"

// Anchor is one located occurrence of the target word in the transcript.
type Anchor struct {
	// Index is the token position of the match.
	Index int
	// Token is the normalized token that matched.
	Token string
	// Fuzzy is true when the match needed fuzzy comparison.
	Fuzzy bool
}

// Result is the outcome of extracting a spelling from one transcript.
type Result struct {
	// Spelling is the extracted letter sequence joined into one lower-case
	// string, e.g. "cat". Empty when no letters were found.
	Spelling string
	// IsValid reports whether the transcript matched the expected structure:
	// at least one anchor and at least one letter.
	IsValid bool
	// Confidence scores the match from 0 to 100.
	Confidence int
	// Anchors holds the located target-word occurrences, at most two.
	Anchors []Anchor
	// Letters are the extracted single-letter tokens in transcript order.
	Letters []string
	// Issues lists human-readable notes about fallbacks taken. Diagnostic
	// only, except for IssueNoLetters.
	Issues []string
}

// Extractor turns transcripts into spelling Results. The zero value is not
// usable; construct with New.
type Extractor struct {
	similarityNotes bool
	similarityMin   float64
	letterAliases   bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSimilarityNotes annotates fuzzy-anchor issues with the Jaro-Winkler
// similarity between token and target, marking scores below min. The notes
// are diagnostic and never change which anchors are accepted.
func WithSimilarityNotes(min float64) Option {
	return func(e *Extractor) {
		e.similarityNotes = true
		e.similarityMin = min
	}
}

// WithLetterNameAliases rewrites spoken letter names ("bee", "aitch",
// "double u") to the letters they name before extraction. Off by default:
// several names are ordinary words, so chatty transcripts gain phantom
// letters.
func WithLetterNameAliases() Option {
	return func(e *Extractor) {
		e.letterAliases = true
	}
}

// New returns an Extractor with the given options applied.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract runs extraction with default options. See Extractor.Extract.
func Extract(transcript, targetWord string) Result {
	return defaultExtractor.Extract(transcript, targetWord)
}

// Extract locates the target word and the spelled letters in transcript and
// scores the match. It is deterministic: the same inputs always produce the
// same Result.
func (e *Extractor) Extract(transcript, targetWord string) Result {
	var res Result

	target := normalizeToken(targetWord)
	tokens := tokenize(transcript)
	if e.letterAliases {
		var changed int
		tokens, changed = expandLetterNames(tokens, target)
		if changed > 0 {
			res.Issues = append(res.Issues, fmt.Sprintf("letter name aliases rewrote %d token(s)", changed))
		}
	}

	if target == "" || len(tokens) == 0 {
		res.Issues = append(res.Issues, IssueNoLetters)
		return res
	}

	first, firstOK := findAnchor(tokens, target, 0)
	var second Anchor
	secondOK := false
	if firstOK {
		res.Anchors = append(res.Anchors, first)
		if first.Fuzzy {
			res.Issues = append(res.Issues, e.fuzzyIssue(first, target))
		}
		second, secondOK = findAnchor(tokens, target, first.Index+1)
		if secondOK {
			res.Anchors = append(res.Anchors, second)
			if second.Fuzzy {
				res.Issues = append(res.Issues, e.fuzzyIssue(second, target))
			}
		}
	}

	switch {
	case firstOK && secondOK:
		res.Letters = lettersBetween(tokens, first.Index, second.Index)
	case firstOK:
		res.Letters = lettersAfter(tokens, first.Index)
		if len(res.Letters) > 0 {
			res.Issues = append(res.Issues, "single anchor: letters taken from the run following it")
		}
	default:
		res.Letters = longestLetterRun(tokens)
		if len(res.Letters) > 0 {
			res.Issues = append(res.Issues, "no anchor: letters taken from the longest single-letter run")
		}
	}

	res.Spelling = strings.Join(res.Letters, "")
	res.IsValid = len(res.Anchors) >= 1 && len(res.Letters) >= 1
	res.Confidence = confidence(len(res.Anchors), len(res.Letters), len(target))
	if len(res.Letters) == 0 {
		res.Issues = append(res.Issues, IssueNoLetters)
	}
	return res
}

func (e *Extractor) fuzzyIssue(a Anchor, target string) string {
	if !e.similarityNotes {
		return fmt.Sprintf("fuzzy anchor %q accepted for %q", a.Token, target)
	}
	sim := matchr.JaroWinkler(a.Token, target, false)
	if sim < e.similarityMin {
		return fmt.Sprintf("fuzzy anchor %q accepted for %q (similarity %.2f, below %.2f)", a.Token, target, sim, e.similarityMin)
	}
	return fmt.Sprintf("fuzzy anchor %q accepted for %q (similarity %.2f)", a.Token, target, sim)
}

// findAnchor returns the first token at or after from that matches target.
// The whole range is tried for an exact match before any fuzzy comparison,
// so a clean occurrence always wins over an earlier mangled one.
func findAnchor(tokens []string, target string, from int) (Anchor, bool) {
	for i := from; i < len(tokens); i++ {
		if tokens[i] == target {
			return Anchor{Index: i, Token: tokens[i]}, true
		}
	}
	for i := from; i < len(tokens); i++ {
		if fuzzyMatch(tokens[i], target) {
			return Anchor{Index: i, Token: tokens[i], Fuzzy: true}, true
		}
	}
	return Anchor{}, false
}

// lettersBetween collects the single-letter tokens strictly between the two
// anchor positions. Non-letter tokens in the gap are skipped.
func lettersBetween(tokens []string, first, second int) []string {
	var letters []string
	for i := first + 1; i < second; i++ {
		if isLetterToken(tokens[i]) {
			letters = append(letters, tokens[i])
		}
	}
	return letters
}

// lettersAfter collects the consecutive single-letter tokens immediately
// after the anchor, stopping at the first token that is not a letter.
func lettersAfter(tokens []string, anchor int) []string {
	var letters []string
	for i := anchor + 1; i < len(tokens); i++ {
		if !isLetterToken(tokens[i]) {
			break
		}
		letters = append(letters, tokens[i])
	}
	return letters
}

// longestLetterRun returns the longest run of consecutive single-letter
// tokens anywhere in the transcript. Ties go to the earliest run.
func longestLetterRun(tokens []string) []string {
	var best, current []string
	for _, tok := range tokens {
		if isLetterToken(tok) {
			current = append(current, tok)
			continue
		}
		if len(current) > len(best) {
			best = current
		}
		current = nil
	}
	if len(current) > len(best) {
		best = current
	}
	return best
}

// confidence scores a match. Two anchors with the expected letter count is a
// full-structure match; missing structure steps the score down. No letters
// means nothing was spelled, regardless of anchors.
func confidence(anchors, letters, targetLen int) int {
	if letters == 0 {
		return 0
	}
	switch anchors {
	case 2:
		diff := letters - targetLen
		if diff < 0 {
			diff = -diff
		}
		switch diff {
		case 0:
			return 100
		case 1:
			return 90
		case 2:
			return 80
		default:
			return 70
		}
	case 1:
		return 50
	default:
		return 30
	}
}
