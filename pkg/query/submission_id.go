// Package query implements the boolean text-query engine that evaluates
// subscriptions against newly published submissions: tokenization, field
// projection, the query AST, and match-location bookkeeping for the
// positional EXCEPT operator.
package query

import (
	"fmt"
	"strconv"
)

// SubmissionID is an opaque, totally-ordered identifier for a submission.
// It is backed by the site's monotonically increasing numeric key.
type SubmissionID uint64

// ParseSubmissionID parses the decimal string form used at persistence and
// log boundaries.
func ParseSubmissionID(s string) (SubmissionID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse submission id %q: %w", s, err)
	}
	return SubmissionID(v), nil
}

// String renders the canonical decimal form.
func (id SubmissionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Less reports whether id sorts before other under the submission id's
// natural total order.
func (id SubmissionID) Less(other SubmissionID) bool {
	return id < other
}

// MarshalJSON renders the id as a JSON string, matching the persisted
// "latest_ids" array shape described in the external interfaces.
func (id SubmissionID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(id.String())), nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number, since legacy
// persisted records store ids as bare integers.
func (id *SubmissionID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unmarshal submission id %q: %w", string(data), err)
	}
	*id = SubmissionID(v)
	return nil
}

// Rating is the content rating of a submission.
type Rating string

const (
	RatingGeneral Rating = "GENERAL"
	RatingMature  Rating = "MATURE"
	RatingAdult   Rating = "ADULT"
)

// ratingAliases maps every bare word the rating: field accepts to its
// Rating. safe and questionable are historical aliases carried over from
// the site's own rating vocabulary and must keep mapping to GENERAL and
// MATURE respectively, not to a rating of their own.
var ratingAliases = map[string]Rating{
	"general":      RatingGeneral,
	"safe":         RatingGeneral,
	"mature":       RatingMature,
	"questionable": RatingMature,
	"adult":        RatingAdult,
	"explicit":     RatingAdult,
}

// RatingByName resolves a rating: field's bare-word value to a Rating. ok
// is false for any word outside the fixed alias table.
func RatingByName(name string) (rating Rating, ok bool) {
	r, ok := ratingAliases[name]
	return r, ok
}
