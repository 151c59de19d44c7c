package subscription

import (
	"sync"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/queryparse"
)

// DestinationBlocklist holds the set of blocklist query strings a
// destination has configured, plus a lazily computed combined query:
// And([Not(q) for q in blocklists]). The combined query is invalidated
// whenever the blocklist set mutates and rebuilt on next read.
type DestinationBlocklist struct {
	mu          sync.Mutex
	destination Destination
	blocklists  map[string]query.Node

	combined query.Node
}

// NewDestinationBlocklist builds an empty blocklist for destination. Use
// this to model "add one at a time" call sites distinct from loading a
// persisted set (see DestinationBlocklistFromRecords); the original source
// carried two incompatible from_query constructors for these two cases, so
// they are modeled here as two distinct, unambiguous constructors.
func NewDestinationBlocklist(destination Destination) *DestinationBlocklist {
	return &DestinationBlocklist{destination: destination, blocklists: make(map[string]query.Node)}
}

// DestinationBlocklistFromRecords reconstructs a blocklist from its
// persisted list of {"query": "..."} records.
func DestinationBlocklistFromRecords(destination Destination, queries []string) (*DestinationBlocklist, error) {
	b := NewDestinationBlocklist(destination)
	for _, q := range queries {
		if err := b.Add(q); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// DestinationBlocklistFromQuery builds a single-entry blocklist from one
// query string, the "add one" case.
func DestinationBlocklistFromQuery(destination Destination, queryStr string) (*DestinationBlocklist, error) {
	return DestinationBlocklistFromRecords(destination, []string{queryStr})
}

// CountBlocks reports how many blocklist entries this destination has.
func (b *DestinationBlocklist) CountBlocks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocklists)
}

// Add parses and inserts a blocklist query, invalidating the combined
// query cache.
func (b *DestinationBlocklist) Add(queryStr string) error {
	node, err := queryparse.Parse(queryStr)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocklists[queryStr] = node
	b.combined = nil
	return nil
}

// Remove deletes a blocklist query by its exact source string, invalidating
// the combined query cache.
func (b *DestinationBlocklist) Remove(queryStr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blocklists, queryStr)
	b.combined = nil
}

// Has reports whether queryStr is blocked at this destination.
func (b *DestinationBlocklist) Has(queryStr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blocklists[queryStr]
	return ok
}

// AsCombinedQuery returns the lazily computed And([Not(q) ...]) over every
// blocklist entry, or nil if the destination has no blocklist entries (so
// callers can skip the second Matches call entirely on the hot path).
func (b *DestinationBlocklist) AsCombinedQuery() query.Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.blocklists) == 0 {
		return nil
	}
	if b.combined == nil {
		nodes := make([]query.Node, 0, len(b.blocklists))
		for _, q := range b.blocklists {
			nodes = append(nodes, query.NewNotNode(q))
		}
		b.combined = query.NewAndNode(nodes)
	}
	return b.combined
}

// Queries returns the blocklist's query strings, for persistence.
func (b *DestinationBlocklist) Queries() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.blocklists))
	for q := range b.blocklists {
		out = append(out, q)
	}
	return out
}
