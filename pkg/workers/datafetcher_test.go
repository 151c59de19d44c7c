package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	sitefake "github.com/3leaps/subwatch/pkg/siteclient/fake"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

type fakeMatcher struct {
	matches []*subscription.Subscription
}

func (f *fakeMatcher) MatchingAll(target *query.QueryTarget) []*subscription.Subscription {
	return f.matches
}

// TestDataFetcher404DropsStateInsteadOfStalling confirms a 404 while
// fetching metadata (no FullSub ever obtained) removes the id entirely,
// instead of silently leaving it stuck in submission_state forever.
func TestDataFetcher404DropsStateInsteadOfStalling(t *testing.T) {
	ctx := context.Background()
	site := sitefake.New()
	site.FetchErrs[5] = &siteclient.StatusError{Status: 404, Op: "GetFullSubmission"}

	pool := waitpool.New(0, 10)
	pool.AddSubID(5)

	df := NewDataFetcher(pool, site, &fakeMatcher{}, nil, nil)
	df.doProcess(ctx)

	assert.Equal(t, 0, pool.Size(), "a 404 with no metadata ever fetched must drop the id, not wedge it")
}

// TestDataFetcherPermanentStatusDropsState mirrors the 404 case for any
// other non-retryable status.
func TestDataFetcherPermanentStatusDropsState(t *testing.T) {
	ctx := context.Background()
	site := sitefake.New()
	site.FetchErrs[6] = &siteclient.StatusError{Status: 401, Op: "GetFullSubmission"}

	pool := waitpool.New(0, 10)
	pool.AddSubID(6)

	df := NewDataFetcher(pool, site, &fakeMatcher{}, nil, nil)
	df.doProcess(ctx)

	assert.Equal(t, 0, pool.Size())
}

// TestDataFetcherConnectionErrorEntersBackoff confirms a connection-level
// failure (not a *siteclient.StatusError) is retried rather than
// dropped, respecting context cancellation instead of the real
// connectionBackoff wait.
func TestDataFetcherConnectionErrorEntersBackoff(t *testing.T) {
	site := sitefake.New()
	site.FetchErrs[8] = &dialError{}

	pool := waitpool.New(0, 10)
	pool.AddSubID(8)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	df := NewDataFetcher(pool, site, &fakeMatcher{}, nil, nil)
	df.doProcess(ctx)

	assert.Equal(t, 1, pool.Size(), "a connection error must retry in place, not drop the id")
}

// TestDataFetcherSuccessPublishesFetchedData is a smoke test that a
// successful fetch still reaches SetFetchedData as before.
func TestDataFetcherSuccessPublishesFetchedData(t *testing.T) {
	ctx := context.Background()
	site := sitefake.New()
	site.AddSubmission(sitefake.Submission{ID: 3})

	matched := []*subscription.Subscription{{QueryStr: "cat"}}
	pool := waitpool.New(0, 10)

	df := NewDataFetcher(pool, site, &fakeMatcher{matches: matched}, nil, nil)
	df.doProcess(ctx) // discovers id 3 via the browse page
	df.doProcess(ctx) // fetches its metadata

	require.Equal(t, 1, pool.SizeActive())
}
