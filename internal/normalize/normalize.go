// Package normalize strips banking boilerplate from transaction descriptions
// and extracts the tokens that carry meaning.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	referenceRe = regexp.MustCompile(`\b(?:RIF|REF|CRO|TRN|CRN|ID|NR|NUM|N)\b[\s.:°#/-]*[A-Z0-9/.-]*[0-9][A-Z0-9/.-]*`)
	dateRe      = regexp.MustCompile(`\b\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4}\b`)
	timeRe      = regexp.MustCompile(`\b\d{1,2}[:.]\d{2}(?:[:.]\d{2})?\b`)
	cardMaskRe  = regexp.MustCompile(`[X*]{3,}\s?\d{0,4}`)
	punctRe     = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Description returns the canonical form of a bank description: upper-cased,
// without reference numbers, dates, times, card masks, protocol codes,
// standalone numbers and punctuation, with whitespace collapsed. The result
// is a fixed point: Description(Description(s)) == Description(s).
func Description(s string) string {
	out := strings.ToUpper(s)
	for {
		next := pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func pass(s string) string {
	s = referenceRe.ReplaceAllString(s, " ")
	s = dateRe.ReplaceAllString(s, " ")
	s = timeRe.ReplaceAllString(s, " ")
	s = cardMaskRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if isNumeric(f) || isProtocolCode(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// isProtocolCode reports long alphanumeric runs that mix letters and digits,
// such as SEPA mandate ids. Short codes like F24 or A2A are kept because they
// often name the counterparty.
func isProtocolCode(tok string) bool {
	if len([]rune(tok)) < 6 {
		return false
	}
	hasDigit, hasLetter := false, false
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	return hasDigit && hasLetter
}

func isNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Tokens returns the significant tokens of s: normalized, at least three
// characters, not a stopword, not purely numeric, deduplicated in order of
// first appearance.
func Tokens(s string) []string {
	fields := strings.Fields(Description(s))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || isNumeric(f) || IsStopword(f) {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// PatternKeyLength is how much of the original description PatternKey looks at.
const PatternKeyLength = 40

// PatternKey reduces a description to a coarse grouping key: the first
// PatternKeyLength characters, digits and punctuation removed, upper-cased,
// whitespace collapsed.
func PatternKey(s string) string {
	runes := []rune(s)
	if len(runes) > PatternKeyLength {
		runes = runes[:PatternKeyLength]
	}
	key := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToUpper(r)
	}, string(runes))
	return strings.TrimSpace(spaceRe.ReplaceAllString(key, " "))
}
