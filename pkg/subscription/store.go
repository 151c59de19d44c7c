package subscription

import (
	"sort"
	"strings"
	"sync"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
)

// Store holds every live subscription and destination blocklist, guarded
// by one mutex since adds/removes/pauses and the Sender's re-evaluation
// pass can happen from different goroutines.
type Store struct {
	mu sync.RWMutex

	subs       map[identityKey]*Subscription
	byDest     map[Destination][]*Subscription
	blocklists map[Destination]*DestinationBlocklist
}

// NewStore builds an empty subscription store.
func NewStore() *Store {
	return &Store{
		subs:       make(map[identityKey]*Subscription),
		byDest:     make(map[Destination][]*Subscription),
		blocklists: make(map[Destination]*DestinationBlocklist),
	}
}

// AddSubscription inserts s, failing subwatcherr.ErrDuplicate if a
// subscription with the same identity already exists.
func (st *Store) AddSubscription(s *Subscription) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := s.identityKey()
	if _, exists := st.subs[key]; exists {
		return subwatcherr.ErrDuplicate
	}
	st.subs[key] = s
	st.byDest[s.Destination] = append(st.byDest[s.Destination], s)
	return nil
}

// RemoveSubscription removes the subscription matching queryStr and
// destination, failing subwatcherr.ErrNotFound if none exists.
func (st *Store) RemoveSubscription(queryStr string, destination Destination) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := identityKey{query: strings.ToLower(queryStr), destination: destination}
	sub, exists := st.subs[key]
	if !exists {
		return subwatcherr.ErrNotFound
	}
	delete(st.subs, key)
	list := st.byDest[destination]
	for i, s := range list {
		if s == sub {
			st.byDest[destination] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

// ListByDestination returns every subscription at destination, sorted by
// casefolded query string.
func (st *Store) ListByDestination(destination Destination) []*Subscription {
	st.mu.RLock()
	defer st.mu.RUnlock()

	list := append([]*Subscription(nil), st.byDest[destination]...)
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].QueryStr) < strings.ToLower(list[j].QueryStr)
	})
	return list
}

func (st *Store) find(queryStr string, destination Destination) (*Subscription, bool) {
	key := identityKey{query: strings.ToLower(queryStr), destination: destination}
	sub, ok := st.subs[key]
	return sub, ok
}

// PauseSubscription pauses the matching subscription, failing
// subwatcherr.ErrNotFound if it does not exist or
// subwatcherr.ErrAlreadyPaused if it is already paused.
func (st *Store) PauseSubscription(queryStr string, destination Destination) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sub, ok := st.find(queryStr, destination)
	if !ok {
		return subwatcherr.ErrNotFound
	}
	if sub.Paused {
		return subwatcherr.ErrAlreadyPaused
	}
	sub.Paused = true
	return nil
}

// ResumeSubscription un-pauses the matching subscription, failing
// subwatcherr.ErrNotFound if it does not exist or
// subwatcherr.ErrAlreadyRunning if it is not paused.
func (st *Store) ResumeSubscription(queryStr string, destination Destination) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sub, ok := st.find(queryStr, destination)
	if !ok {
		return subwatcherr.ErrNotFound
	}
	if !sub.Paused {
		return subwatcherr.ErrAlreadyRunning
	}
	sub.Paused = false
	return nil
}

// PauseDestination pauses every subscription at destination, failing
// subwatcherr.ErrNotFound if the destination has no subscriptions or
// subwatcherr.ErrAlreadyPaused if all of them are already paused.
func (st *Store) PauseDestination(destination Destination) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.byDest[destination]
	if len(list) == 0 {
		return subwatcherr.ErrNotFound
	}
	changed := false
	for _, s := range list {
		if !s.Paused {
			changed = true
		}
		s.Paused = true
	}
	if !changed {
		return subwatcherr.ErrAlreadyPaused
	}
	return nil
}

// ResumeDestination un-pauses every subscription at destination, failing
// subwatcherr.ErrNotFound if the destination has no subscriptions or
// subwatcherr.ErrAlreadyRunning if none of them is paused.
func (st *Store) ResumeDestination(destination Destination) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	list := st.byDest[destination]
	if len(list) == 0 {
		return subwatcherr.ErrNotFound
	}
	changed := false
	for _, s := range list {
		if s.Paused {
			changed = true
		}
		s.Paused = false
	}
	if !changed {
		return subwatcherr.ErrAlreadyRunning
	}
	return nil
}

// blocklistFor returns the destination's blocklist, creating an empty one
// on first access. Callers must hold st.mu.
func (st *Store) blocklistFor(destination Destination) *DestinationBlocklist {
	b, ok := st.blocklists[destination]
	if !ok {
		b = NewDestinationBlocklist(destination)
		st.blocklists[destination] = b
	}
	return b
}

// AddToBlocklist adds queryStr to destination's blocklist.
func (st *Store) AddToBlocklist(destination Destination, queryStr string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.blocklistFor(destination).Add(queryStr)
}

// RemoveFromBlocklist removes queryStr from destination's blocklist.
func (st *Store) RemoveFromBlocklist(destination Destination, queryStr string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.blocklistFor(destination).Remove(queryStr)
}

// ListBlocklist returns destination's blocklist query strings.
func (st *Store) ListBlocklist(destination Destination) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	b, ok := st.blocklists[destination]
	if !ok {
		return nil
	}
	return b.Queries()
}

// Blocklist returns destination's DestinationBlocklist, or nil if it has
// none. Used by the evaluation hot path to fetch the combined query once
// per destination per submission.
func (st *Store) Blocklist(destination Destination) *DestinationBlocklist {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.blocklists[destination]
}

// MatchingAll scans every subscription in the store and returns those
// that match target, evaluating each destination's blocklist query once
// and reusing it for every subscription at that destination.
func (st *Store) MatchingAll(target *query.QueryTarget) []*Subscription {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []*Subscription
	for dest, subs := range st.byDest {
		var blocklistQuery query.Node
		if b, ok := st.blocklists[dest]; ok {
			blocklistQuery = b.AsCombinedQuery()
		}
		for _, sub := range subs {
			if sub.Matches(target, blocklistQuery) {
				out = append(out, sub)
			}
		}
	}
	return out
}

// MatchingAmong re-checks only the given candidate subscriptions against
// target, the shape the Sender stage uses to re-verify a submission's
// previously matched subscriptions haven't been removed, paused, or
// newly blocklisted since it was fetched.
func (st *Store) MatchingAmong(target *query.QueryTarget, candidates []*Subscription) []*Subscription {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Subscription, 0, len(candidates))
	blocklistCache := make(map[Destination]query.Node)
	for _, sub := range candidates {
		blocklistQuery, cached := blocklistCache[sub.Destination]
		if !cached {
			if b, ok := st.blocklists[sub.Destination]; ok {
				blocklistQuery = b.AsCombinedQuery()
			}
			blocklistCache[sub.Destination] = blocklistQuery
		}
		if sub.Matches(target, blocklistQuery) {
			out = append(out, sub)
		}
	}
	return out
}

// Destinations returns every destination with at least one subscription or
// blocklist entry, for persistence.
func (st *Store) Destinations() []Destination {
	st.mu.RLock()
	defer st.mu.RUnlock()

	seen := make(map[Destination]struct{})
	for d := range st.byDest {
		if len(st.byDest[d]) > 0 {
			seen[d] = struct{}{}
		}
	}
	for d, b := range st.blocklists {
		if b.CountBlocks() > 0 {
			seen[d] = struct{}{}
		}
	}
	out := make([]Destination, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	return out
}
