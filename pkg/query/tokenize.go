package query

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The punctuation class is every Unicode whitespace character plus ASCII
// punctuation, excluding '-' and '_' so that hyphenated and underscored
// words tokenize as a single word. Derived once, in the same spirit as the
// teacher's pkg/match deriving NormalizePattern's escape set from a single
// well-documented constant.
const asciiPunctuationMinusHyphenUnderscore = "!\"#$%&'()*+,./:;<=>?@[\\]^`{|}~"

var (
	// wordSplit splits free text into raw word candidates on any run of
	// punctuation-class characters.
	wordSplit = regexp.MustCompile(`[` + regexp.QuoteMeta(asciiPunctuationMinusHyphenUnderscore) + `\s]+`)

	// notPunctuationPattern matches one-or-more characters outside the
	// punctuation class; used to fill the gap in prefix/suffix/embedded
	// wildcard regexes.
	notPunctuationPattern = `[^` + regexp.QuoteMeta(asciiPunctuationMinusHyphenUnderscore) + `\s]+`
)

// isPunctuationRune reports whether r is in the punctuation class used to
// strip leading/trailing punctuation from a tokenized word and to decide
// match-span boundaries.
func isPunctuationRune(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(asciiPunctuationMinusHyphenUnderscore, r)
}

// splitToWords splits free text on punctuation-class separators.
func splitToWords(text string) []string {
	return wordSplit.Split(text, -1)
}

// cleanWord lower-cases a word and strips residual leading/trailing
// punctuation left over from splitting. '-' and '_' are outside the
// punctuation class, so they are kept even at the ends of a word.
func cleanWord(w string) string {
	return strings.TrimFunc(strings.ToLower(w), isPunctuationRune)
}

// tokenizeText splits and cleans a text segment into word tokens, dropping
// empty tokens produced by runs of separators at the start/end of text.
func tokenizeText(text string) []string {
	raw := splitToWords(text)
	out := make([]string, 0, len(raw))
	for _, w := range raw {
		cleaned := cleanWord(w)
		if cleaned == "" {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

// runeBefore returns the rune ending at byte offset pos in text, and
// whether one exists (false at the start of text).
func runeBefore(text string, pos int) (rune, bool) {
	if pos <= 0 {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return r, true
}

// runeAt returns the rune starting at byte offset pos in text, and whether
// one exists (false at the end of text).
func runeAt(text string, pos int) (rune, bool) {
	if pos >= len(text) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return r, true
}

// isStartBoundary reports whether byte offset pos in text is a valid match
// start: the beginning of text, or immediately preceded by a punctuation-
// class rune. Go's RE2 engine has no lookbehind, so boundary anchoring is
// checked by hand against the surrounding runes instead of compiled into
// the pattern itself.
func isStartBoundary(text string, pos int) bool {
	r, ok := runeBefore(text, pos)
	if !ok {
		return true
	}
	return isPunctuationRune(r)
}

// isEndBoundary reports whether byte offset pos in text is a valid match
// end: the end of text, or immediately followed by a punctuation-class
// rune.
func isEndBoundary(text string, pos int) bool {
	r, ok := runeAt(text, pos)
	if !ok {
		return true
	}
	return isPunctuationRune(r)
}

// findBoundaryMatches returns every match of core in text whose start and
// end are both on a word boundary, mimicking the boundary_start/
// boundary_end lookaround wrapper the grammar specifies.
func findBoundaryMatches(core *regexp.Regexp, text string) [][2]int {
	var out [][2]int
	for _, m := range core.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if !isStartBoundary(text, start) || !isEndBoundary(text, end) {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
