// Package fetchqueue implements the two-tier FIFO queue that feeds the
// DataFetcher stage: newly observed submissions take priority over
// submissions being refreshed after a revert.
package fetchqueue

import (
	"sync"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
)

// Queue holds two FIFO lanes, "new" and "refresh", plus a per-id refresh
// counter bounding how many times a submission may be re-fetched before
// its media is declared broken.
type Queue struct {
	mu sync.Mutex

	new     []query.SubmissionID
	refresh []query.SubmissionID

	refreshCount map[query.SubmissionID]int
	refreshLimit int
}

// New builds a Queue with the given fetch_refresh_limit.
func New(refreshLimit int) *Queue {
	return &Queue{
		refreshCount: make(map[query.SubmissionID]int),
		refreshLimit: refreshLimit,
	}
}

// PutNew appends id to the "new" lane.
func (q *Queue) PutNew(id query.SubmissionID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.new = append(q.new, id)
}

// PutRefresh appends id to the "refresh" lane and increments its refresh
// counter, failing subwatcherr.ErrTooManyRefresh once the counter exceeds
// the configured limit. The counter is not reset on success; the caller
// (wait pool revert) owns deciding when a ceiling means "give up on
// media for good".
func (q *Queue) PutRefresh(id query.SubmissionID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.refreshCount[id]++
	if q.refreshCount[id] > q.refreshLimit {
		return subwatcherr.ErrTooManyRefresh
	}
	q.refresh = append(q.refresh, id)
	return nil
}

// RefreshCount reports how many times id has been queued for refresh.
func (q *Queue) RefreshCount(id query.SubmissionID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.refreshCount[id]
}

// GetNowait pops the next id, preferring the "new" lane over "refresh".
// ok is false when both lanes are empty.
func (q *Queue) GetNowait() (id query.SubmissionID, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.new) > 0 {
		id = q.new[0]
		q.new = q.new[1:]
		return id, true
	}
	if len(q.refresh) > 0 {
		id = q.refresh[0]
		q.refresh = q.refresh[1:]
		return id, true
	}
	return 0, false
}

// QSizeNew reports the current length of the "new" lane.
func (q *Queue) QSizeNew() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.new)
}

// QSizeRefresh reports the current length of the "refresh" lane.
func (q *Queue) QSizeRefresh() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.refresh)
}
