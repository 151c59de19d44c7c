package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/subwatch/pkg/siteclient"
	sitefake "github.com/3leaps/subwatch/pkg/siteclient/fake"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

func openTestCache(t *testing.T) *submissioncache.Cache {
	t.Helper()
	c, err := submissioncache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var matchedSub = []*subscription.Subscription{{QueryStr: "cat"}}

// TestCacheHitShortCircuitsToReadyToSend is the regression test for the
// submission-cache-hit bug: a hit must land the state directly on
// IsReadyToSend instead of looping back through the download stage
// forever.
func TestCacheHitShortCircuitsToReadyToSend(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)
	require.NoError(t, cache.Save(ctx, submissioncache.Entry{SubID: 7, FileRef: "cached-ref"}))

	site := sitefake.New()
	site.AddSubmission(sitefake.Submission{ID: 7})

	pool := waitpool.New(0, 10)
	pool.AddSubID(7)
	full, err := site.GetFullSubmission(ctx, 7)
	require.NoError(t, err)
	pool.SetFetchedData(7, full, matchedSub)

	md := NewMediaDownloader(pool, cache, nil, nil)
	md.doProcess(ctx)

	assert.Empty(t, pool.StatesReadyForMediaDownload(), "a cache hit must not leave the state ready for download again")
	ready := pool.StatesReadyToSend()
	require.Len(t, ready, 1)
	assert.False(t, ready[0].MediaDownloading)
	assert.False(t, ready[0].MediaUploading)
	require.NotNil(t, ready[0].UploadedMedia)
	assert.Equal(t, "cached-ref", ready[0].UploadedMedia.FileRef)
}

// TestDownload404RevertsWithoutRetry confirms a permanent 404 is not
// retried in place: it reverts the fetch instead of looping the same
// download call until it happens to succeed.
func TestDownload404RevertsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)

	site := sitefake.New()
	site.AddSubmission(sitefake.Submission{
		ID:           9,
		DownloadErrs: []error{&siteclient.StatusError{Status: 404, Op: "Download"}},
		File:         siteclient.DownloadedFile{LocalPath: "should-not-be-used"},
	})

	pool := waitpool.New(0, 10)
	pool.AddSubID(9)
	full, err := site.GetFullSubmission(ctx, 9)
	require.NoError(t, err)
	pool.SetFetchedData(9, full, matchedSub)

	md := NewMediaDownloader(pool, cache, nil, nil)
	md.doProcess(ctx)

	assert.Empty(t, pool.StatesReadyForMediaDownload(), "reverted state isn't active until refetched")
	id, ok := pool.GetNextForDataFetch()
	require.True(t, ok, "a 404 must requeue the id for refetch, not a silent drop")
	assert.EqualValues(t, 9, id)
}

// TestDownloadConnectionErrorEntersBackoff confirms a non-StatusError
// (a bare connection failure) is classified retryable and enters the
// backoff loop, rather than falling through with no retry. The test
// context is cancelled almost immediately so the backoff sleep returns
// via ctx.Done() instead of waiting out the real connectionBackoff
// duration.
func TestDownloadConnectionErrorEntersBackoff(t *testing.T) {
	cache := openTestCache(t)

	site := sitefake.New()
	connErr := &dialError{}
	site.AddSubmission(sitefake.Submission{
		ID:           11,
		DownloadErrs: []error{connErr},
	})

	pool := waitpool.New(0, 10)
	pool.AddSubID(11)
	full, err := site.GetFullSubmission(context.Background(), 11)
	require.NoError(t, err)
	pool.SetFetchedData(11, full, matchedSub)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	st, ok := pool.GetNextForMediaDownload()
	require.True(t, ok)
	md := NewMediaDownloader(pool, cache, nil, nil)
	file, settings, derr := md.downloadWithRetry(ctx, st)

	assert.Error(t, derr, "a cancelled context mid-backoff must surface the original connection error")
	assert.Equal(t, siteclient.DownloadedFile{}, file)
	assert.Equal(t, siteclient.SendSettings{}, settings)
}

// TestMediaDownload404ExhaustsRefreshLimitToTextOnlySentinel is scenario
// 6: media repeatedly 404s across refetches until the refresh limit is
// exceeded, at which point the submission is finalized as a text-only
// sentinel instead of being retried forever.
func TestMediaDownload404ExhaustsRefreshLimitToTextOnlySentinel(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)

	notFound := func() error { return &siteclient.StatusError{Status: 404, Op: "Download"} }
	site := sitefake.New()
	site.AddSubmission(sitefake.Submission{
		ID:           21,
		DownloadErrs: []error{notFound(), notFound()},
	})

	pool := waitpool.New(0, 1) // refresh limit of 1
	pool.AddSubID(21)
	md := NewMediaDownloader(pool, cache, nil, nil)

	refetch := func() {
		id, ok := pool.GetNextForDataFetch()
		require.True(t, ok)
		full, err := site.GetFullSubmission(ctx, id)
		require.NoError(t, err)
		pool.SetFetchedData(id, full, matchedSub)
	}

	refetch()
	md.doProcess(ctx) // first 404: within refresh limit, reverts and requeues
	assert.Empty(t, pool.StatesReadyToSend())

	refetch()
	md.doProcess(ctx) // second 404: refresh limit exceeded, finalize as text-only

	ready := pool.StatesReadyToSend()
	require.Len(t, ready, 1)
	require.NotNil(t, ready[0].UploadedMedia)
	assert.True(t, ready[0].UploadedMedia.TextOnly)
	assert.False(t, ready[0].UploadedMedia.HasMedia)
}

// dialError simulates a bare connection-level failure that is not a
// *siteclient.StatusError at all.
type dialError struct{}

func (e *dialError) Error() string { return "dial tcp: connection refused" }
