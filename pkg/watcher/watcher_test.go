package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chatfake "github.com/3leaps/subwatch/pkg/chatclient/fake"
	"github.com/3leaps/subwatch/pkg/query"
	sitefake "github.com/3leaps/subwatch/pkg/siteclient/fake"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subpersist"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subscription"
)

func newTestWatcher(t *testing.T) (*Watcher, *sitefake.Client, *chatfake.Client) {
	t.Helper()
	dir := t.TempDir()

	cache, err := submissioncache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	persist := subpersist.NewStore(filepath.Join(dir, "subs.json"))
	store := subscription.NewStore()
	site := sitefake.New()
	chat := chatfake.New()

	cfg := DefaultConfig()
	cfg.NumDataFetchers = 1
	cfg.NumMediaDownloaders = 1
	cfg.NumMediaUploaders = 1

	w := New(cfg, store, cache, persist, site, chat, nil, nil)
	return w, site, chat
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestWatcherDeliversMatchingSubmissionEndToEnd(t *testing.T) {
	w, site, chat := newTestWatcher(t)
	ctx := context.Background()

	dest := subscription.Destination(42)
	require.NoError(t, w.AddSubscription(ctx, "cat", dest))

	target := query.NewQueryTarget(1, []string{"a cat"}, nil, nil, nil, query.RatingGeneral)
	site.AddSubmission(sitefake.Submission{
		ID:     1,
		Target: target,
		Posted: time.Now(),
		File:   siteclient.DownloadedFile{LocalPath: "/tmp/cat.png", ContentType: "image/png", SizeBytes: 10},
	})

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	waitFor(t, 20*time.Second, func() bool {
		return len(chat.Sent) == 1
	})

	require.Len(t, chat.Sent, 1)
	require.Equal(t, dest, chat.Sent[0].Destination)
	require.Contains(t, chat.Sent[0].Prefix, "cat")
	require.Equal(t, query.SubmissionID(1), w.LatestID())
}

func TestWatcherSkipsNonMatchingSubmission(t *testing.T) {
	w, site, chat := newTestWatcher(t)
	ctx := context.Background()

	dest := subscription.Destination(7)
	require.NoError(t, w.AddSubscription(ctx, "dog", dest))

	target := query.NewQueryTarget(2, []string{"a cat"}, nil, nil, nil, query.RatingGeneral)
	site.AddSubmission(sitefake.Submission{
		ID:     2,
		Target: target,
		Posted: time.Now(),
	})

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	waitFor(t, 20*time.Second, func() bool {
		return w.LatestID() == query.SubmissionID(2)
	})
	require.Empty(t, chat.Sent)
}

func TestStartTwiceFails(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })
	require.Error(t, w.Start(ctx))
}

func TestStopPersistsSubscriptions(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	ctx := context.Background()
	dest := subscription.Destination(9)
	require.NoError(t, w.AddSubscription(ctx, "fox", dest))

	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Stop(ctx))

	loaded, _, err := w.Persist.Load(ctx)
	require.NoError(t, err)
	subs := loaded.ListByDestination(dest)
	require.Len(t, subs, 1)
	require.Equal(t, "fox", subs[0].QueryStr)
}
