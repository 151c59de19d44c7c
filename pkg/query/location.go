package query

// MatchLocation records where in a field's text a query clause matched, so
// the EXCEPT operator can tell whether a word match and an exception match
// cover the same span of text.
type MatchLocation struct {
	Field FieldLocation
	Start int
	End   int
}

// Overlaps reports whether two match locations refer to overlapping spans
// of the same field. Locations in different fields never overlap.
func (m MatchLocation) Overlaps(other MatchLocation) bool {
	if m.Field != other.Field {
		return false
	}
	if m.Start < other.Start {
		return m.End > other.Start
	}
	return other.End > m.Start
}

// OverlapsAny reports whether m overlaps any location in others.
func (m MatchLocation) OverlapsAny(others []MatchLocation) bool {
	for _, o := range others {
		if m.Overlaps(o) {
			return true
		}
	}
	return false
}
