package query

import (
	"reflect"
	"regexp"
	"strings"
)

// Node is any boolean query AST node.
type Node interface {
	// Matches reports whether the node's clause is satisfied by target.
	Matches(target *QueryTarget) bool

	// String renders the node back to the surface query syntax, used for
	// logging and round-trip tests.
	String() string
}

// LocationNode is the subset of nodes that can also report where in the
// target they matched; Exception and LocationOr require both operands to
// implement it.
type LocationNode interface {
	Node
	MatchLocations(target *QueryTarget) []MatchLocation
}

// FieldSelector returns the Field a node should evaluate against; nil
// means AnyField, matching the parser's "field defaults to AnyField" rule.
type FieldSelector func(target *QueryTarget) Field

type fieldSelector = FieldSelector

func selectAny(target *QueryTarget) Field         { return target.Any }
func selectTitle(target *QueryTarget) Field       { return target.Title }
func selectDescription(target *QueryTarget) Field { return target.Description }
func selectKeyword(target *QueryTarget) Field     { return target.Keywords }
func selectArtist(target *QueryTarget) Field      { return target.Artist }

// Exported field selectors, for callers outside this package (the parser)
// building Word/Prefix/Suffix/Regex/Phrase nodes scoped to a named field.
var (
	SelectTitle       fieldSelector = selectTitle
	SelectDescription fieldSelector = selectDescription
	SelectKeyword     fieldSelector = selectKeyword
	SelectArtist      fieldSelector = selectArtist
)

// FieldByName resolves one of the parser's recognized field-name aliases
// to the fieldSelector a node should be built with. ok is false for an
// unrecognized name.
func FieldByName(name string) (sel fieldSelector, ok bool) {
	switch name {
	case "title":
		return SelectTitle, true
	case "desc", "description", "message":
		return SelectDescription, true
	case "keywords", "keyword", "tag", "tags":
		return SelectKeyword, true
	case "artist", "author", "poster", "lower", "uploader":
		return SelectArtist, true
	default:
		return nil, false
	}
}

// fieldName renders a fieldSelector's canonical name for String(), or ""
// for AnyField (which is printed bare, with no "field:" prefix).
func fieldName(sel fieldSelector) string {
	switch {
	case sel == nil:
		return ""
	case sameFunc(sel, selectTitle):
		return "title"
	case sameFunc(sel, selectDescription):
		return "desc"
	case sameFunc(sel, selectKeyword):
		return "keywords"
	case sameFunc(sel, selectArtist):
		return "artist"
	default:
		return ""
	}
}

// sameFunc compares fieldSelector values by identity. Go forbids comparing
// funcs with ==; since every selector is a package-level named function,
// comparing their reflect.Value pointers is stable.
func sameFunc(a, b fieldSelector) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// WordNode matches when word appears verbatim in the target field's word
// list.
type WordNode struct {
	Word  string
	Field fieldSelector
}

// NewWordNode builds a Word node. A nil field selector means AnyField.
func NewWordNode(word string, field fieldSelector) *WordNode {
	return &WordNode{Word: word, Field: field}
}

func (n *WordNode) field() fieldSelector {
	if n.Field == nil {
		return selectAny
	}
	return n.Field
}

func (n *WordNode) Matches(target *QueryTarget) bool {
	lower := strings.ToLower(n.Word)
	for _, w := range n.field()(target).Words() {
		if w == lower {
			return true
		}
	}
	return false
}

func (n *WordNode) MatchLocations(target *QueryTarget) []MatchLocation {
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(n.Word))
	var out []MatchLocation
	for loc, text := range n.field()(target).TextsDict() {
		for _, span := range findBoundaryMatches(pattern, text) {
			out = append(out, MatchLocation{Field: loc, Start: span[0], End: span[1]})
		}
	}
	return out
}

func (n *WordNode) String() string {
	if name := fieldName(n.field()); name != "" {
		return name + ":" + n.Word
	}
	return n.Word
}

// PrefixNode matches when a word in the field's word list starts with
// Prefix and is strictly longer than it.
type PrefixNode struct {
	Prefix string
	Field  fieldSelector
}

func NewPrefixNode(prefix string, field fieldSelector) *PrefixNode {
	return &PrefixNode{Prefix: prefix, Field: field}
}

func (n *PrefixNode) field() fieldSelector {
	if n.Field == nil {
		return selectAny
	}
	return n.Field
}

func (n *PrefixNode) Matches(target *QueryTarget) bool {
	lower := strings.ToLower(n.Prefix)
	for _, w := range n.field()(target).Words() {
		if strings.HasPrefix(w, lower) && w != lower {
			return true
		}
	}
	return false
}

func (n *PrefixNode) MatchLocations(target *QueryTarget) []MatchLocation {
	pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(n.Prefix) + notPunctuationPattern)
	var out []MatchLocation
	for loc, text := range n.field()(target).TextsDict() {
		for _, span := range findBoundaryMatches(pattern, text) {
			out = append(out, MatchLocation{Field: loc, Start: span[0], End: span[1]})
		}
	}
	return out
}

func (n *PrefixNode) String() string {
	if name := fieldName(n.field()); name != "" {
		return name + ":" + n.Prefix + "*"
	}
	return n.Prefix + "*"
}

// SuffixNode matches when a word in the field's word list ends with
// Suffix and is strictly longer than it.
type SuffixNode struct {
	Suffix string
	Field  fieldSelector
}

func NewSuffixNode(suffix string, field fieldSelector) *SuffixNode {
	return &SuffixNode{Suffix: suffix, Field: field}
}

func (n *SuffixNode) field() fieldSelector {
	if n.Field == nil {
		return selectAny
	}
	return n.Field
}

func (n *SuffixNode) Matches(target *QueryTarget) bool {
	lower := strings.ToLower(n.Suffix)
	for _, w := range n.field()(target).Words() {
		if strings.HasSuffix(w, lower) && w != lower {
			return true
		}
	}
	return false
}

func (n *SuffixNode) MatchLocations(target *QueryTarget) []MatchLocation {
	pattern := regexp.MustCompile(`(?i)` + notPunctuationPattern + regexp.QuoteMeta(n.Suffix))
	var out []MatchLocation
	for loc, text := range n.field()(target).TextsDict() {
		for _, span := range findBoundaryMatches(pattern, text) {
			out = append(out, MatchLocation{Field: loc, Start: span[0], End: span[1]})
		}
	}
	return out
}

func (n *SuffixNode) String() string {
	if name := fieldName(n.field()); name != "" {
		return name + ":*" + n.Suffix
	}
	return "*" + n.Suffix
}

// RegexNode matches when its compiled pattern searches true against a word
// in the field's word list. Built either directly, or via
// NewRegexNodeFromWildcards for a word containing embedded '*' wildcards.
type RegexNode struct {
	Pattern *regexp.Regexp
	Field   fieldSelector
}

func NewRegexNode(pattern *regexp.Regexp, field fieldSelector) *RegexNode {
	return &RegexNode{Pattern: pattern, Field: field}
}

// NewRegexNodeFromWildcards builds the Regex node the parser produces for a
// word containing one or more '*' wildcards that are neither a pure prefix
// nor a pure suffix pattern: each literal segment between asterisks is
// escaped, the gaps are filled with "one or more non-punctuation
// characters", and the whole pattern is boundary-anchored.
func NewRegexNodeFromWildcards(word string, field fieldSelector) *RegexNode {
	parts := regexp.MustCompile(`\*+`).Split(word, -1)
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = regexp.QuoteMeta(p)
	}
	core := strings.Join(escaped, notPunctuationPattern)
	pattern := regexp.MustCompile(`(?i)` + core)
	return &RegexNode{Pattern: pattern, Field: field}
}

func (n *RegexNode) field() fieldSelector {
	if n.Field == nil {
		return selectAny
	}
	return n.Field
}

func (n *RegexNode) Matches(target *QueryTarget) bool {
	for _, w := range n.field()(target).Words() {
		if len(findBoundaryMatches(n.Pattern, w)) > 0 {
			return true
		}
	}
	return false
}

func (n *RegexNode) MatchLocations(target *QueryTarget) []MatchLocation {
	var out []MatchLocation
	for loc, text := range n.field()(target).TextsDict() {
		for _, span := range findBoundaryMatches(n.Pattern, text) {
			out = append(out, MatchLocation{Field: loc, Start: span[0], End: span[1]})
		}
	}
	return out
}

func (n *RegexNode) String() string {
	if name := fieldName(n.field()); name != "" {
		return name + ":" + n.Pattern.String()
	}
	return n.Pattern.String()
}

// PhraseNode matches against the field's raw, untokenized texts rather
// than its word list, so a phrase may span more than one word.
type PhraseNode struct {
	Phrase string
	Field  fieldSelector

	pattern *regexp.Regexp
}

func NewPhraseNode(phrase string, field fieldSelector) *PhraseNode {
	return &PhraseNode{
		Phrase:  phrase,
		Field:   field,
		pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase)),
	}
}

func (n *PhraseNode) field() fieldSelector {
	if n.Field == nil {
		return selectAny
	}
	return n.Field
}

func (n *PhraseNode) Matches(target *QueryTarget) bool {
	for _, text := range n.field()(target).Texts() {
		if len(findBoundaryMatches(n.pattern, text)) > 0 {
			return true
		}
	}
	return false
}

func (n *PhraseNode) MatchLocations(target *QueryTarget) []MatchLocation {
	var out []MatchLocation
	for loc, text := range n.field()(target).TextsDict() {
		for _, span := range findBoundaryMatches(n.pattern, text) {
			out = append(out, MatchLocation{Field: loc, Start: span[0], End: span[1]})
		}
	}
	return out
}

func (n *PhraseNode) String() string {
	if name := fieldName(n.field()); name != "" {
		return name + `:"` + n.Phrase + `"`
	}
	return `"` + n.Phrase + `"`
}

// RatingNode matches on exact equality against the target's rating.
type RatingNode struct {
	Rating Rating
}

func NewRatingNode(rating Rating) *RatingNode {
	return &RatingNode{Rating: rating}
}

func (n *RatingNode) Matches(target *QueryTarget) bool {
	return target.Rating == n.Rating
}

func (n *RatingNode) String() string {
	return "rating:" + string(n.Rating)
}

// NotNode inverts its child's match.
type NotNode struct {
	Child Node
}

func NewNotNode(child Node) *NotNode {
	return &NotNode{Child: child}
}

func (n *NotNode) Matches(target *QueryTarget) bool {
	return !n.Child.Matches(target)
}

func (n *NotNode) String() string {
	return "-" + n.Child.String()
}

// AndNode matches iff every child matches. Same-kind children are flattened
// at construction so nested Ands never nest at evaluation time.
type AndNode struct {
	Children []Node
}

// NewAndNode flattens any AndNode children into the new node's child list.
func NewAndNode(children []Node) *AndNode {
	flat := make([]Node, 0, len(children))
	for _, c := range children {
		if and, ok := c.(*AndNode); ok {
			flat = append(flat, and.Children...)
		} else {
			flat = append(flat, c)
		}
	}
	return &AndNode{Children: flat}
}

func (n *AndNode) Matches(target *QueryTarget) bool {
	for _, c := range n.Children {
		if !c.Matches(target) {
			return false
		}
	}
	return true
}

func (n *AndNode) String() string {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// OrNode matches iff any child matches. Same-kind children are flattened at
// construction.
type OrNode struct {
	Children []Node
}

// NewOrNode flattens any OrNode children into the new node's child list. If
// every child is a LocationNode, the result is upgraded to a LocationOrNode
// so Exception and further location-aware composition still work.
func NewOrNode(children []Node) Node {
	flat := make([]Node, 0, len(children))
	allLocation := true
	for _, c := range children {
		if or, ok := c.(*OrNode); ok {
			flat = append(flat, or.Children...)
		} else if lor, ok := c.(*LocationOrNode); ok {
			for _, lc := range lor.Children {
				flat = append(flat, lc)
			}
		} else {
			flat = append(flat, c)
		}
	}
	for _, c := range flat {
		if _, ok := c.(LocationNode); !ok {
			allLocation = false
			break
		}
	}
	if allLocation && len(flat) > 0 {
		locChildren := make([]LocationNode, len(flat))
		for i, c := range flat {
			locChildren[i] = c.(LocationNode)
		}
		return &LocationOrNode{Children: locChildren}
	}
	return &OrNode{Children: flat}
}

func (n *OrNode) Matches(target *QueryTarget) bool {
	for _, c := range n.Children {
		if c.Matches(target) {
			return true
		}
	}
	return false
}

func (n *OrNode) String() string {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// LocationOrNode is an OrNode whose children are all location-producing, so
// it can itself report match locations (the union of its children's).
type LocationOrNode struct {
	Children []LocationNode
}

func (n *LocationOrNode) Matches(target *QueryTarget) bool {
	for _, c := range n.Children {
		if c.Matches(target) {
			return true
		}
	}
	return false
}

func (n *LocationOrNode) MatchLocations(target *QueryTarget) []MatchLocation {
	seen := make(map[MatchLocation]struct{})
	var out []MatchLocation
	for _, c := range n.Children {
		for _, loc := range c.MatchLocations(target) {
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			out = append(out, loc)
		}
	}
	return out
}

func (n *LocationOrNode) String() string {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// ExceptionNode matches iff Inner has a match span that does not overlap
// any match span of Exclusion in the same field. Both operands must be
// location-producing, which the parser enforces at construction time.
type ExceptionNode struct {
	Inner     LocationNode
	Exclusion LocationNode
}

func NewExceptionNode(inner, exclusion LocationNode) *ExceptionNode {
	return &ExceptionNode{Inner: inner, Exclusion: exclusion}
}

func (n *ExceptionNode) Matches(target *QueryTarget) bool {
	innerLocs := n.Inner.MatchLocations(target)
	exclLocs := n.Exclusion.MatchLocations(target)
	for _, loc := range innerLocs {
		if !loc.OverlapsAny(exclLocs) {
			return true
		}
	}
	return false
}

func (n *ExceptionNode) String() string {
	return n.Inner.String() + " EXCEPT " + n.Exclusion.String()
}
