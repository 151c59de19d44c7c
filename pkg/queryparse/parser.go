// Package queryparse turns a subscription's surface query syntax into a
// query.Node AST, with an LRU cache in front since the same subscription
// text is re-parsed against every incoming submission.
package queryparse

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
)

var reservedKeywords = map[string]bool{
	"not":    true,
	"and":    true,
	"or":     true,
	"except": true,
	"ignore": true,
}

// parser holds the cursor over a query string's runes. It is not
// reentrant or safe for concurrent use; build one per Parse call.
type parser struct {
	input []rune
	pos   int
}

func newParser(s string) *parser {
	return &parser{input: []rune(s)}
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() rune {
	if p.atEnd() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) advance() {
	p.pos++
}

func (p *parser) skipSpace() {
	for !p.atEnd() && unicode.IsSpace(p.peek()) {
		p.advance()
	}
}

// isWordChar reports whether r can appear inside a bare word token. The
// surface grammar reserves '(', ')', ':', and '"' as structural
// characters; everything else, including whitespace-excluded punctuation
// like '*', '-', '!', and '@', is word content.
func isWordChar(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	switch r {
	case '(', ')', ':', '"':
		return false
	}
	return true
}

func (p *parser) scanWord() string {
	start := p.pos
	for !p.atEnd() && isWordChar(p.peek()) {
		p.advance()
	}
	return string(p.input[start:p.pos])
}

// matchKeyword reports whether the input at the current position is the
// case-insensitive keyword kw, followed by a non-word-char boundary (or
// end of input). On a match it advances past the keyword; on a mismatch it
// leaves the cursor untouched.
func (p *parser) matchKeyword(kw string) bool {
	end := p.pos + len(kw)
	if end > len(p.input) {
		return false
	}
	candidate := string(p.input[p.pos:end])
	if !strings.EqualFold(candidate, kw) {
		return false
	}
	if end < len(p.input) && isWordChar(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

// scanQuoted consumes a double-quoted, backslash-escaped phrase starting
// at the current '"' and returns its unescaped contents.
func (p *parser) scanQuoted() (string, error) {
	if p.peek() != '"' {
		return "", fmt.Errorf("expected opening quote")
	}
	p.advance()
	var b strings.Builder
	for {
		if p.atEnd() {
			return "", fmt.Errorf("unterminated quoted string")
		}
		c := p.peek()
		if c == '\\' {
			p.advance()
			if p.atEnd() {
				return "", fmt.Errorf("unterminated escape in quoted string")
			}
			b.WriteRune(p.peek())
			p.advance()
			continue
		}
		if c == '"' {
			p.advance()
			return b.String(), nil
		}
		b.WriteRune(c)
		p.advance()
	}
}

func (p *parser) expect(r rune) error {
	if p.peek() != r {
		return fmt.Errorf("expected %q at position %d", r, p.pos)
	}
	p.advance()
	return nil
}

// parseExpr parses expr := full_elem (connector full_elem)*, with an
// implicit AND connector when no "and"/"or" keyword separates two
// elements.
func (p *parser) parseExpr() (query.Node, error) {
	result, err := p.parseFullElement()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.atEnd() || p.peek() == ')' {
			break
		}
		isOr := false
		if p.matchKeyword("and") {
			// explicit AND, default behavior
		} else if p.matchKeyword("or") {
			isOr = true
		}
		p.skipSpace()
		if p.atEnd() || p.peek() == ')' {
			return nil, fmt.Errorf("dangling connector at position %d", p.pos)
		}
		next, err := p.parseFullElement()
		if err != nil {
			return nil, err
		}
		if isOr {
			result = query.NewOrNode([]query.Node{result, next})
		} else {
			result = query.NewAndNode([]query.Node{result, next})
		}
	}
	return result, nil
}

// parseFullElement parses full_elem := negator element.
func (p *parser) parseFullElement() (query.Node, error) {
	negated := p.parseNegator()
	p.skipSpace()
	elem, err := p.parseElement()
	if err != nil {
		return nil, err
	}
	if negated {
		return query.NewNotNode(elem), nil
	}
	return elem, nil
}

// parseNegator parses negator := "!" | "-" | "not" | ε.
func (p *parser) parseNegator() bool {
	p.skipSpace()
	switch p.peek() {
	case '!', '-':
		p.advance()
		return true
	}
	return p.matchKeyword("not")
}

// parseElement parses element := quotes | "(" expr ")" | field |
// word_with_except | word.
func (p *parser) parseElement() (query.Node, error) {
	p.skipSpace()
	if p.atEnd() {
		return nil, fmt.Errorf("unexpected end of query at position %d", p.pos)
	}
	if p.peek() == '"' {
		phrase, err := p.scanQuoted()
		if err != nil {
			return nil, err
		}
		return query.NewPhraseNode(phrase, nil), nil
	}
	if p.peek() == '(' {
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return inner, nil
	}

	word := p.scanWord()
	if word == "" {
		return nil, fmt.Errorf("unexpected character %q at position %d", p.peek(), p.pos)
	}

	// "@name value" field form.
	if strings.HasPrefix(word, "@") && len(word) > 1 {
		return p.parseFieldValue(word[1:])
	}
	// "name:value" field form.
	if p.peek() == ':' {
		p.advance()
		return p.parseFieldValue(word)
	}

	return p.parseWordOrException(word, nil)
}

// parseFieldValue parses field_value := quotes | "(" word_with_except ")"
// | word_with_except | word, scoped to the named field, with the special
// "rating" field handled separately since its value is a fixed alias
// table rather than a text match.
func (p *parser) parseFieldValue(fieldName string) (query.Node, error) {
	if strings.EqualFold(fieldName, "rating") {
		return p.parseRatingValue()
	}
	sel, ok := query.FieldByName(strings.ToLower(fieldName))
	if !ok {
		return nil, fmt.Errorf("unrecognised field name %q", fieldName)
	}

	p.skipSpace()
	if p.peek() == '"' {
		phrase, err := p.scanQuoted()
		if err != nil {
			return nil, err
		}
		return query.NewPhraseNode(phrase, sel), nil
	}
	if p.peek() == '(' {
		p.advance()
		node, err := p.parseWordWithExceptionRequired(sel)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return node, nil
	}

	word := p.scanWord()
	if word == "" {
		return nil, fmt.Errorf("missing value for field %q", fieldName)
	}
	return p.parseWordOrException(word, sel)
}

// parseRatingValue parses the rating field's bare-word alias value.
func (p *parser) parseRatingValue() (query.Node, error) {
	p.skipSpace()
	if p.peek() == '"' {
		return nil, fmt.Errorf("rating field cannot be a quoted string")
	}
	word := p.scanWord()
	rating, ok := query.RatingByName(strings.ToLower(word))
	if !ok {
		return nil, fmt.Errorf("unrecognised rating value %q", word)
	}
	return query.NewRatingNode(rating), nil
}

// parseWordOrException parses word_with_except := word ("except"|"ignore")
// exception, falling back to a plain word when no exception connector
// follows.
func (p *parser) parseWordOrException(word string, sel query.FieldSelector) (query.Node, error) {
	node, err := p.buildWordNode(word, sel)
	if err != nil {
		return nil, err
	}

	save := p.pos
	p.skipSpace()
	if p.matchKeyword("except") || p.matchKeyword("ignore") {
		exclusion, err := p.parseException(sel)
		if err != nil {
			return nil, err
		}
		locNode, ok := node.(query.LocationNode)
		if !ok {
			return nil, fmt.Errorf("word %q is not eligible for an exception clause", word)
		}
		return query.NewExceptionNode(locNode, exclusion), nil
	}
	p.pos = save
	return node, nil
}

// parseWordWithExceptionRequired parses the "(" word_with_exception ")"
// bracketed field-value form, where the except/ignore clause is mandatory.
func (p *parser) parseWordWithExceptionRequired(sel query.FieldSelector) (query.Node, error) {
	p.skipSpace()
	word := p.scanWord()
	if word == "" {
		return nil, fmt.Errorf("expected word before exception connector")
	}
	return p.parseWordOrException(word, sel)
}

// parseException parses exception := elem | "(" elem ("or"? elem)* ")",
// where each elem is a quoted phrase or bare word evaluated against sel.
func (p *parser) parseException(sel query.FieldSelector) (query.LocationNode, error) {
	p.skipSpace()
	if p.peek() != '(' {
		elem, err := p.parseExceptionElement(sel)
		if err != nil {
			return nil, err
		}
		return asLocationOr([]query.LocationNode{elem}), nil
	}

	p.advance()
	var elems []query.LocationNode
	first, err := p.parseExceptionElement(sel)
	if err != nil {
		return nil, err
	}
	elems = append(elems, first)
	for {
		p.skipSpace()
		if p.peek() == ')' {
			break
		}
		p.matchKeyword("or")
		p.skipSpace()
		elem, err := p.parseExceptionElement(sel)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return asLocationOr(elems), nil
}

func (p *parser) parseExceptionElement(sel query.FieldSelector) (query.LocationNode, error) {
	p.skipSpace()
	if p.peek() == '"' {
		phrase, err := p.scanQuoted()
		if err != nil {
			return nil, err
		}
		return query.NewPhraseNode(phrase, sel), nil
	}
	word := p.scanWord()
	if word == "" {
		return nil, fmt.Errorf("expected exception element at position %d", p.pos)
	}
	node, err := p.buildWordNode(word, sel)
	if err != nil {
		return nil, err
	}
	locNode, ok := node.(query.LocationNode)
	if !ok {
		return nil, fmt.Errorf("exception element %q is not location-producing", word)
	}
	return locNode, nil
}

// asLocationOr wraps one-or-more location-producing nodes in a
// location-preserving Or, matching the original grammar's "exception is
// always a LocationOrQuery, even over a single element" behavior.
func asLocationOr(elems []query.LocationNode) query.LocationNode {
	nodes := make([]query.Node, len(elems))
	for i, e := range elems {
		nodes[i] = e
	}
	result := query.NewOrNode(nodes)
	return result.(query.LocationNode)
}

// buildWordNode classifies a raw word token into a Word, Prefix, Suffix,
// or Regex node based on embedded '*' wildcards, rejecting reserved
// keywords that were not quoted.
func (p *parser) buildWordNode(word string, sel query.FieldSelector) (query.Node, error) {
	if strings.HasPrefix(word, "*") && !strings.Contains(word[1:], "*") {
		return query.NewSuffixNode(word[1:], sel), nil
	}
	if strings.HasSuffix(word, "*") && !strings.Contains(word[:len(word)-1], "*") {
		return query.NewPrefixNode(word[:len(word)-1], sel), nil
	}
	if strings.Contains(word, "*") {
		return query.NewRegexNodeFromWildcards(word, sel), nil
	}
	if reservedKeywords[strings.ToLower(word)] {
		return nil, fmt.Errorf(
			"word query %q cannot be a reserved keyword; surround it with quotation marks to search for it literally",
			word,
		)
	}
	return query.NewWordNode(word, sel), nil
}

// Parse parses a subscription query string into a query.Node, wrapping any
// grammar failure in subwatcherr.ErrInvalidQuery.
func Parse(queryStr string) (query.Node, error) {
	p := newParser(queryStr)
	node, err := p.parseExpr()
	if err != nil {
		return nil, subwatcherr.NewInvalidQuery(queryStr, err)
	}
	p.skipSpace()
	if !p.atEnd() {
		return nil, subwatcherr.NewInvalidQuery(queryStr, fmt.Errorf("unexpected trailing input at position %d", p.pos))
	}
	return node, nil
}
