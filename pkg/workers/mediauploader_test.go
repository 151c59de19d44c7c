package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/subwatch/pkg/chatclient"
	chatfake "github.com/3leaps/subwatch/pkg/chatclient/fake"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

// fakeFullSub is a minimal siteclient.FullSub for constructing wait-pool
// states directly, without a site client round trip.
type fakeFullSub struct {
	id query.SubmissionID
}

func (f *fakeFullSub) SubID() query.SubmissionID  { return f.id }
func (f *fakeFullSub) Target() *query.QueryTarget { return nil }
func (f *fakeFullSub) PostedAt() time.Time        { return time.Time{} }
func (f *fakeFullSub) Download(_ context.Context) (siteclient.DownloadedFile, siteclient.SendSettings, error) {
	return siteclient.DownloadedFile{}, siteclient.SendSettings{}, nil
}

// TestMediaUploaderCacheHitShortCircuits mirrors the downloader's cache
// hit fix: a hit must land the state ready to send in one step.
func TestMediaUploaderCacheHitShortCircuits(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)
	require.NoError(t, cache.Save(ctx, submissioncache.Entry{SubID: 1, FileRef: "cached-ref"}))

	pool := waitpool.New(0, 10)
	pool.AddSubID(1)
	pool.SetFetchedData(1, &fakeFullSub{id: 1}, matchedSub)
	pool.SetDownloaded(1, siteclient.DownloadedFile{LocalPath: "x"}, siteclient.SendSettings{})

	mu := NewMediaUploader(pool, cache, chatfake.New(), nil, nil)
	mu.doProcess(ctx)

	ready := pool.StatesReadyToSend()
	require.Len(t, ready, 1)
	assert.False(t, ready[0].MediaUploading)
	require.NotNil(t, ready[0].UploadedMedia)
	assert.Equal(t, "cached-ref", ready[0].UploadedMedia.FileRef)
}

// TestMediaUploaderFloodWaitRetriesSameDestination is scenario 7: a
// flood-wait response sleeps out the requested duration and retries the
// same upload, rather than giving up or stalling the stage. The fake
// reports zero seconds so the test doesn't actually block.
func TestMediaUploaderFloodWaitRetriesSameDestination(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)
	dest := subscription.Destination(42)

	chat := chatfake.New()
	chat.UploadErrs[dest] = []error{&chatclient.FloodWaitError{Seconds: 0}}

	pool := waitpool.New(0, 10)
	pool.AddSubID(2)
	pool.SetFetchedData(2, &fakeFullSub{id: 2}, []*subscription.Subscription{{QueryStr: "cat", Destination: dest}})
	pool.SetDownloaded(2, siteclient.DownloadedFile{LocalPath: "x"}, siteclient.SendSettings{})

	mu := NewMediaUploader(pool, cache, chat, nil, nil)
	mu.doProcess(ctx)

	ready := pool.StatesReadyToSend()
	require.Len(t, ready, 1, "the upload must succeed on retry after the flood wait, not stall")
	assert.False(t, ready[0].MediaUploading)
	require.Len(t, chat.Uploaded, 1, "exactly one successful upload should have been recorded, after the flood-waited attempt")
}

// TestMediaUploaderConnectionErrorEntersBackoff confirms a bare
// connection-level failure enters the retry loop instead of leaving
// MediaUploading stuck forever. The context is cancelled almost
// immediately so the test doesn't wait out the real connectionBackoff.
func TestMediaUploaderConnectionErrorEntersBackoff(t *testing.T) {
	cache := openTestCache(t)
	dest := subscription.Destination(7)

	chat := chatfake.New()
	chat.UploadErrs[dest] = []error{&dialError{}}

	pool := waitpool.New(0, 10)
	pool.AddSubID(3)
	pool.SetFetchedData(3, &fakeFullSub{id: 3}, []*subscription.Subscription{{QueryStr: "cat", Destination: dest}})
	pool.SetDownloaded(3, siteclient.DownloadedFile{LocalPath: "x"}, siteclient.SendSettings{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	mu := NewMediaUploader(pool, cache, chat, nil, nil)
	mu.doProcess(ctx)

	_, ok := pool.GetNextForMediaUpload()
	assert.False(t, ok, "the state must have been reverted to refetch, not left claimed forever")
	id, ok := pool.GetNextForDataFetch()
	require.True(t, ok, "a connection error must requeue the id for refetch")
	assert.EqualValues(t, 3, id)
}

// TestMediaUploaderBlockedDestinationReverts confirms a blocked
// destination doesn't leave MediaUploading stuck: the stage can't pause
// the destination itself, so it reverts for a fresh fetch instead.
func TestMediaUploaderBlockedDestinationReverts(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t)
	dest := subscription.Destination(9)

	chat := chatfake.New()
	chat.UploadErrs[dest] = []error{&chatclient.BlockedError{Destination: dest, Reason: "deactivated"}}

	pool := waitpool.New(0, 10)
	pool.AddSubID(4)
	pool.SetFetchedData(4, &fakeFullSub{id: 4}, []*subscription.Subscription{{QueryStr: "cat", Destination: dest}})
	pool.SetDownloaded(4, siteclient.DownloadedFile{LocalPath: "x"}, siteclient.SendSettings{})

	mu := NewMediaUploader(pool, cache, chat, nil, nil)
	mu.doProcess(ctx)

	id, ok := pool.GetNextForDataFetch()
	require.True(t, ok, "a blocked destination must requeue for refetch rather than stall")
	assert.EqualValues(t, 4, id)
}
