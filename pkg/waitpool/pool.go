// Package waitpool holds the cooperative scheduler shared by every
// pipeline stage: a single table of in-flight submissions, keyed by id,
// that each stage worker polls for its own readiness predicate and pops
// the lowest-id ready entry from.
package waitpool

import (
	"sort"
	"sync"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/fetchqueue"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subscription"
)

// Pool is the shared scheduler state for one watcher: the fetch queue
// feeding new and refresh ids in, and the submission_state/active_states
// tables every stage worker reads and mutates under one lock.
//
// active_states grows backpressure: SetFetchedData blocks a NEW id
// (never a refresh already tracked) until active_states has room, so a
// slow downloader or uploader can't let unbounded fetched-but-unsent
// submissions pile up in memory.
type Pool struct {
	*fetchqueue.Queue

	mu   sync.Mutex
	cond *sync.Cond

	maxActive int

	submissionState map[query.SubmissionID]*CheckState
	activeStates    map[query.SubmissionID]*CheckState
}

// New builds an empty pool. maxActive bounds active_states; refreshLimit
// is passed straight through to the embedded fetch queue.
func New(maxActive, refreshLimit int) *Pool {
	p := &Pool{
		Queue:           fetchqueue.New(refreshLimit),
		maxActive:       maxActive,
		submissionState: make(map[query.SubmissionID]*CheckState),
		activeStates:    make(map[query.SubmissionID]*CheckState),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// AddSubID registers a brand new submission id with both the fetch queue
// and submission_state, ready to be picked up by a data fetcher.
func (p *Pool) AddSubID(id query.SubmissionID) {
	p.mu.Lock()
	if _, exists := p.submissionState[id]; !exists {
		p.submissionState[id] = newCheckState(id)
	}
	p.mu.Unlock()
	p.PutNew(id)
}

// GetNextForDataFetch pulls the next id off the fetch queue (new ids
// before refreshes), or reports false if both lanes are empty.
func (p *Pool) GetNextForDataFetch() (query.SubmissionID, bool) {
	return p.GetNowait()
}

// SetFetchedData records full_data for id, inserting it into
// active_states. For an id not already active (a true new arrival, not a
// refresh of an id already tracked) this blocks until active_states has
// room under maxActive, providing backpressure against the download and
// upload stages falling behind. A refresh of an id already in
// active_states never waits: it was already counted.
func (p *Pool) SetFetchedData(id query.SubmissionID, full siteclient.FullSub, matching []*subscription.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, alreadyActive := p.activeStates[id]
	if !alreadyActive {
		for p.maxActive > 0 && len(p.activeStates) >= p.maxActive {
			p.cond.Wait()
		}
	}

	st, ok := p.submissionState[id]
	if !ok {
		st = newCheckState(id)
		p.submissionState[id] = st
	}
	st.FullSub = full
	st.MatchingSubscriptions = matching
	p.activeStates[id] = st
}

// RevertDataFetch resets id back to its pre-fetch state and re-queues it
// as a refresh, after a download or upload attempt failed in a way that
// calls for refetching rather than retrying in place. id is never
// removed from active_states: a waiting fetcher must not be told there's
// room here when the slot is only being recycled.
func (p *Pool) RevertDataFetch(id query.SubmissionID) error {
	p.mu.Lock()
	st, ok := p.submissionState[id]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	st.Reset()
	return p.PutRefresh(id)
}

// StatesReadyForMediaDownload returns every active state whose
// IsReadyForMediaDownload predicate currently holds.
func (p *Pool) StatesReadyForMediaDownload() []*CheckState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return filterActive(p.activeStates, (*CheckState).IsReadyForMediaDownload)
}

// StatesReadyForMediaUpload returns every active state whose
// IsReadyForMediaUpload predicate currently holds.
func (p *Pool) StatesReadyForMediaUpload() []*CheckState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return filterActive(p.activeStates, (*CheckState).IsReadyForMediaUpload)
}

// StatesReadyToSend returns every active state whose IsReadyToSend
// predicate currently holds.
func (p *Pool) StatesReadyToSend() []*CheckState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return filterActive(p.activeStates, (*CheckState).IsReadyToSend)
}

// GetNextForMediaDownload selects the lowest-id active state ready for
// media download, marks it downloading, and returns it.
func (p *Pool) GetNextForMediaDownload() (*CheckState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := argmin(filterActive(p.activeStates, (*CheckState).IsReadyForMediaDownload))
	if st == nil {
		return nil, false
	}
	st.MediaDownloading = true
	return st, true
}

// GetNextForMediaUpload selects the lowest-id active state ready for
// media upload, marks it uploading, and returns it.
func (p *Pool) GetNextForMediaUpload() (*CheckState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := argmin(filterActive(p.activeStates, (*CheckState).IsReadyForMediaUpload))
	if st == nil {
		return nil, false
	}
	st.MediaUploading = true
	return st, true
}

// SetDownloaded records a finished media download, clears the
// in-progress flag, and pulses waiters: downloading never shrinks
// active_states, but finishing one can free room to move more stages
// along.
func (p *Pool) SetDownloaded(id query.SubmissionID, file siteclient.DownloadedFile, settings siteclient.SendSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.activeStates[id]
	if !ok {
		return
	}
	st.DownloadedFile = &file
	st.SendSettings = &settings
	st.MediaDownloading = false
	p.cond.Broadcast()
}

// SetUploaded records a finished media upload (or the text-only sentinel
// when media could not be produced) and clears the in-progress flags. A
// submission cache hit calls this directly instead of SetDownloaded,
// short-circuiting both the download and upload stages in one step.
func (p *Pool) SetUploaded(id query.SubmissionID, media chatclient.UploadedMedia) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.activeStates[id]
	if !ok {
		return
	}
	st.UploadedMedia = &media
	st.MediaDownloading = false
	st.MediaUploading = false
}

// FinalizeWithoutMedia finalizes id as a text-only (or caption-only) send
// after its refresh limit was exhausted: unlike RevertDataFetch, it
// restores full and matching so the Sender still has something to
// deliver, while recording media as the sentinel upload and clearing the
// in-progress flags. full/matching should be the values the state held
// just before the caller's RevertDataFetch call reset them.
func (p *Pool) FinalizeWithoutMedia(id query.SubmissionID, full siteclient.FullSub, matching []*subscription.Subscription, media chatclient.UploadedMedia) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.submissionState[id]
	if !ok {
		return
	}
	st.FullSub = full
	st.MatchingSubscriptions = matching
	st.UploadedMedia = &media
	st.MediaDownloading = false
	st.MediaUploading = false
	p.activeStates[id] = st
}

// RemoveState drops id from both submission_state and active_states,
// when a stage gives up on it, and pulses any fetcher waiting on
// active_states room.
func (p *Pool) RemoveState(id query.SubmissionID) {
	p.mu.Lock()
	delete(p.submissionState, id)
	delete(p.activeStates, id)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// PopNextReadyToSend returns the lowest-id entry across the ENTIRE
// submission_state table, not just active_states, provided that entry is
// itself ready to send. It deliberately refuses to skip ahead to a
// higher-id ready entry while a lower-id entry is still in flight: doing
// so would let sends race ahead of id order, which callers rely on for
// strictly increasing delivery.
func (p *Pool) PopNextReadyToSend() (*CheckState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var min *CheckState
	for _, st := range p.submissionState {
		if min == nil || st.SubID.Less(min.SubID) {
			min = st
		}
	}
	if min == nil || !min.IsReadyToSend() {
		return nil, false
	}
	delete(p.submissionState, min.SubID)
	delete(p.activeStates, min.SubID)
	p.cond.Broadcast()
	return min, true
}

// ReturnPopulatedState re-inserts a state that was popped but whose send
// failed transiently: back into submission_state always, and into
// active_states too if it still carries fetched data, so in-flight
// workers don't lose track of it.
func (p *Pool) ReturnPopulatedState(st *CheckState) {
	p.mu.Lock()
	p.submissionState[st.SubID] = st
	if st.FullSub != nil {
		p.activeStates[st.SubID] = st
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Size reports how many ids are tracked in submission_state.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.submissionState)
}

// SizeActive reports how many ids are tracked in active_states.
func (p *Pool) SizeActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.activeStates)
}

// QSizeDownload reports how many active states are currently awaiting
// media download.
func (p *Pool) QSizeDownload() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(filterActive(p.activeStates, (*CheckState).IsReadyForMediaDownload))
}

// QSizeUpload reports how many active states are currently awaiting
// media upload.
func (p *Pool) QSizeUpload() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(filterActive(p.activeStates, (*CheckState).IsReadyForMediaUpload))
}

// QSizeSend reports how many tracked states (active or not) are
// currently ready to send.
func (p *Pool) QSizeSend() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, st := range p.submissionState {
		if st.IsReadyToSend() {
			n++
		}
	}
	return n
}

// PendingIDs returns every id still tracked in submission_state, sorted
// ascending, for the watcher to persist across a restart so in-flight
// submissions aren't silently dropped.
func (p *Pool) PendingIDs() []query.SubmissionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]query.SubmissionID, 0, len(p.submissionState))
	for id := range p.submissionState {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func filterActive(states map[query.SubmissionID]*CheckState, pred func(*CheckState) bool) []*CheckState {
	out := make([]*CheckState, 0, len(states))
	for _, st := range states {
		if pred(st) {
			out = append(out, st)
		}
	}
	return out
}

func argmin(states []*CheckState) *CheckState {
	var min *CheckState
	for _, st := range states {
		if min == nil || st.SubID.Less(min.SubID) {
			min = st
		}
	}
	return min
}
