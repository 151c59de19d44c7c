package workers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

// Matcher re-evaluates a QueryTarget against the live subscription store,
// satisfied by *subscription.Store.
type Matcher interface {
	MatchingAll(target *query.QueryTarget) []*subscription.Subscription
}

// DataFetcher is the stage that browses for newly posted submissions,
// queues their ids, and fetches each queued id's full metadata before
// handing it to the wait pool with its matching subscriptions attached.
type DataFetcher struct {
	Pool    *waitpool.Pool
	Site    siteclient.Client
	Matcher Matcher
	Logger  *zap.Logger
	Metrics Metrics

	knownIDs map[query.SubmissionID]bool
	lastID   query.SubmissionID
	hasLast  bool
}

// NewDataFetcher builds a DataFetcher. metrics and logger default to
// no-ops if nil.
func NewDataFetcher(pool *waitpool.Pool, site siteclient.Client, matcher Matcher, logger *zap.Logger, metrics Metrics) *DataFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DataFetcher{
		Pool: pool, Site: site, Matcher: matcher, Logger: logger, Metrics: metrics,
		knownIDs: make(map[query.SubmissionID]bool),
	}
}

// Run drives the stage until ctx is cancelled.
func (d *DataFetcher) Run(ctx context.Context) {
	runLoop(ctx, "DataFetcher", d.Logger, d.doProcess, d.RevertLastAttempt)
}

func (d *DataFetcher) doProcess(ctx context.Context) {
	if d.pollBrowsePage(ctx) {
		return
	}

	id, ok := d.Pool.GetNextForDataFetch()
	if !ok {
		timeStage(d.Metrics, "DataFetcher", "waiting for new events in queue", "waiting", func() {
			sleepWhileRunning(ctx, QueueBackoff)
		})
		return
	}
	d.hasLast, d.lastID = true, id

	full, err := d.fetchWithRetry(ctx, id)
	if err != nil {
		switch classifySiteErr(err) {
		case errClassRetryableStatus, errClassRetryableConnection:
			// fetchWithRetry only returns a retryable-classified error when
			// ctx was cancelled mid-backoff (shutdown); re-queue instead of
			// dropping a submission that was never actually given up on.
			if rerr := d.Pool.RevertDataFetch(id); rerr != nil {
				d.Logger.Error("giving up on submission after repeated fetch interruptions",
					zap.Stringer("sub_id", id), zap.Error(rerr))
				d.Pool.RemoveState(id)
			}
		default:
			d.Logger.Error("failed to fetch submission data, dropping id", zap.Stringer("sub_id", id), zap.Error(err))
			d.Pool.RemoveState(id)
		}
		return
	}

	var matches []*subscription.Subscription
	timeStage(d.Metrics, "DataFetcher", "checking submission against subscriptions", "active", func() {
		matches = d.Matcher.MatchingAll(full.Target())
	})

	timeStage(d.Metrics, "DataFetcher", "publishing results to queues", "waiting", func() {
		d.Pool.SetFetchedData(id, full, matches)
	})
	d.Metrics.SetLatestID(uint64(id))
}

// fetchWithRetry fetches id's full metadata, backing off and retrying in
// place for a retryable status or a connection-level error. A 404 or any
// other permanent status is returned immediately: unlike a 404 during
// media download, no metadata has ever been obtained for this id, so
// there is nothing to send without media — the caller must drop it
// instead of trying to finalize it.
func (d *DataFetcher) fetchWithRetry(ctx context.Context, id query.SubmissionID) (siteclient.FullSub, error) {
	for {
		var full siteclient.FullSub
		var err error
		timeStage(d.Metrics, "DataFetcher", "fetching submission data", "active", func() {
			full, err = d.Site.GetFullSubmission(ctx, id)
		})
		if err == nil {
			return full, nil
		}
		switch classifySiteErr(err) {
		case errClassRetryableStatus, errClassRetryableConnection:
			d.Logger.Warn("submission fetch failed, retrying",
				zap.Stringer("sub_id", id), zap.Error(err), zap.Duration("backoff", connectionBackoff))
			sleepWhileRunning(ctx, connectionBackoff)
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		default:
			return nil, err
		}
	}
}

// pollBrowsePage checks the site's recent-submissions listing and queues
// any id not already known. Returns true if it did any work this tick
// (so doProcess can back off rather than also trying a fetch-queue pop in
// the same iteration).
func (d *DataFetcher) pollBrowsePage(ctx context.Context) bool {
	var page []siteclient.ShortSub
	var err error
	timeStage(d.Metrics, "DataFetcher", "browsing for new submissions", "active", func() {
		page, err = d.Site.GetBrowsePage(ctx)
	})
	if err != nil || len(page) == 0 {
		return false
	}
	found := false
	for _, s := range page {
		if d.knownIDs[s.SubID] {
			continue
		}
		d.knownIDs[s.SubID] = true
		d.Pool.AddSubID(s.SubID)
		found = true
	}
	return found
}

// RevertLastAttempt re-queues the last id this stage pulled for fetch, in
// case it hasn't been fully processed.
func (d *DataFetcher) RevertLastAttempt(ctx context.Context) error {
	if !d.hasLast {
		return errors.New("no previous data-fetch attempt to revert")
	}
	return d.Pool.RevertDataFetch(d.lastID)
}
