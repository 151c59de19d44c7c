// Package subscription implements the subscription store: per-destination
// query subscriptions, destination blocklists, and the matching hot path
// that evaluates both against an incoming QueryTarget.
package subscription

import (
	"strings"
	"time"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/queryparse"
)

// Destination identifies the chat/channel a subscription delivers to.
type Destination int64

// Subscription binds a parsed query to a destination. Identity (for the
// store's duplicate/not-found checks) is the casefolded query string plus
// destination; query_str and destination are immutable once constructed,
// Paused and LatestUpdate are not.
type Subscription struct {
	QueryStr     string
	Destination  Destination
	Query        query.Node
	Paused       bool
	LatestUpdate *time.Time
}

// New parses queryStr and builds a fresh, unpaused Subscription.
func New(queryStr string, destination Destination) (*Subscription, error) {
	node, err := queryparse.Parse(queryStr)
	if err != nil {
		return nil, err
	}
	return &Subscription{QueryStr: queryStr, Destination: destination, Query: node}, nil
}

// identityKey returns the key used for duplicate/lookup comparisons:
// casefolded query string plus destination, per the "ignores case but not
// destination" identity rule.
func (s *Subscription) identityKey() identityKey {
	return identityKey{query: strings.ToLower(s.QueryStr), destination: s.Destination}
}

type identityKey struct {
	query       string
	destination Destination
}

// Matches reports whether the subscription matches target, given the
// destination's combined blocklist query (nil if the destination has no
// blocklist entries). Evaluating the subscription query and the blocklist
// query as two separate boolean calls, rather than composing them into one
// And node, is measurably faster and is the shape the hot path uses.
func (s *Subscription) Matches(target *query.QueryTarget, blocklistQuery query.Node) bool {
	if s.Paused {
		return false
	}
	if blocklistQuery != nil {
		return s.Query.Matches(target) && blocklistQuery.Matches(target)
	}
	return s.Query.Matches(target)
}

// Record is the persisted per-subscription record shape, exported so the
// subpersist package can marshal it without reaching into Subscription's
// internals.
type Record struct {
	Query        string  `json:"query"`
	LatestUpdate *string `json:"latest_update"`
	Paused       bool    `json:"paused"`
}

// ToRecord renders the subscription's persisted record shape.
func (s *Subscription) ToRecord() Record {
	var latest *string
	if s.LatestUpdate != nil {
		iso := s.LatestUpdate.Format(time.RFC3339)
		latest = &iso
	}
	return Record{Query: s.QueryStr, LatestUpdate: latest, Paused: s.Paused}
}

// FromRecord reconstructs a Subscription from its persisted record for the
// given destination, matching both the legacy per-subscription shape
// ({query, destination, latest_update}) and the current nested shape
// (destination supplied by the surrounding container).
func FromRecord(rawQuery string, destination Destination, latestUpdate *string, paused bool) (*Subscription, error) {
	sub, err := New(rawQuery, destination)
	if err != nil {
		return nil, err
	}
	if latestUpdate != nil && *latestUpdate != "" {
		t, err := time.Parse(time.RFC3339, *latestUpdate)
		if err != nil {
			return nil, err
		}
		sub.LatestUpdate = &t
	}
	sub.Paused = paused
	return sub, nil
}
