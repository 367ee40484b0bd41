package spelling

import "strings"

const (
	// substringMaxLenDiff bounds rule (a): containment only counts when the
	// two strings are close in length, otherwise every token containing a
	// vowel would anchor short targets.
	substringMaxLenDiff = 3

	// prefixNumerator / prefixDenominator express the 60% shared-prefix rule
	// (b) in integer arithmetic.
	prefixNumerator   = 6
	prefixDenominator = 10

	// positionalMinRatio is the fraction of positions that must agree for
	// rule (c).
	positionalMinRatio = 0.7

	// fuzzyMinTokenLen excludes single-character tokens from fuzzy anchoring
	// entirely. Single characters are spelled-letter material; treating "c"
	// as a mangled "cat" would swallow the very letters being extracted.
	fuzzyMinTokenLen = 2

	// ratioRuleMinLen is the shortest length at which the percentage rules
	// (b) and (c) are meaningful. Below it they degenerate to matching on
	// one or two characters.
	ratioRuleMinLen = 3
)

// fuzzyMatch reports whether token is plausibly the target word mangled by
// transcription. Exact comparison happens before this is consulted, so every
// call is already a miss. Three rules, any of which suffices:
//
//	(a) one string contains the other and their lengths differ by at most 3
//	(b) the first 60% of the shorter string matches the longer one
//	    position-for-position ("fishur" / "fisher" share "fish")
//	(c) at least 70% of positions agree across the shorter length
func fuzzyMatch(token, target string) bool {
	if len(token) < fuzzyMinTokenLen {
		return false
	}

	shorter, longer := token, target
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	if len(longer)-len(shorter) <= substringMaxLenDiff && strings.Contains(longer, shorter) {
		return true
	}

	if len(shorter) < ratioRuleMinLen {
		return false
	}

	k := ceilFraction(len(shorter), prefixNumerator, prefixDenominator)
	if longer[:k] == shorter[:k] {
		return true
	}

	matched := 0
	for i := 0; i < len(shorter); i++ {
		if shorter[i] == longer[i] {
			matched++
		}
	}
	return float64(matched)/float64(len(shorter)) >= positionalMinRatio
}

// ceilFraction returns ceil(n * num / den) using integer arithmetic.
func ceilFraction(n, num, den int) int {
	return (n*num + den - 1) / den
}
