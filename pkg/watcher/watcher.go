// Package watcher assembles the subscription-watching pipeline: the
// subscription store, wait pool, stage workers, submission cache, and
// persistence layer, and owns their shared lifecycle.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subpersist"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
	"github.com/3leaps/subwatch/pkg/waitpool"
	"github.com/3leaps/subwatch/pkg/workers"
)

// Config carries the worker-count and backpressure knobs enumerated at
// the external-interfaces boundary; defaults match fa_search_bot's
// original subscription watcher.
type Config struct {
	Enabled             bool
	NumDataFetchers     int
	NumMediaDownloaders int
	NumMediaUploaders   int
	MaxReadyForUpload   int
	FetchRefreshLimit   int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		NumDataFetchers:     2,
		NumMediaDownloaders: 2,
		NumMediaUploaders:   1,
		MaxReadyForUpload:   100,
		FetchRefreshLimit:   25,
	}
}

// Watcher is the aggregate root: it owns the wait pool, every stage
// worker, the subscription store, the submission cache, and persistence,
// and coordinates their startup/shutdown.
type Watcher struct {
	cfg     Config
	Store   *subscription.Store
	Pool    *waitpool.Pool
	Cache   *submissioncache.Cache
	Persist *subpersist.Store
	Site    siteclient.Client
	Chat    chatclient.Client
	Logger  *zap.Logger
	Metrics workers.Metrics

	mu             sync.Mutex
	running        bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	latestObserved time.Time
	latestID       query.SubmissionID
	runID          string
}

// New builds a Watcher. store, cache, and persist must already be
// constructed (cache and persist own on-disk resources the caller is
// responsible for closing).
func New(cfg Config, store *subscription.Store, cache *submissioncache.Cache, persist *subpersist.Store, site siteclient.Client, chat chatclient.Client, logger *zap.Logger, metrics workers.Metrics) *Watcher {
	if cfg.NumDataFetchers <= 0 {
		cfg.NumDataFetchers = DefaultConfig().NumDataFetchers
	}
	if cfg.NumMediaDownloaders <= 0 {
		cfg.NumMediaDownloaders = DefaultConfig().NumMediaDownloaders
	}
	if cfg.NumMediaUploaders <= 0 {
		cfg.NumMediaUploaders = DefaultConfig().NumMediaUploaders
	}
	if cfg.MaxReadyForUpload <= 0 {
		cfg.MaxReadyForUpload = DefaultConfig().MaxReadyForUpload
	}
	if cfg.FetchRefreshLimit <= 0 {
		cfg.FetchRefreshLimit = DefaultConfig().FetchRefreshLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = workers.NoopMetrics{}
	}
	return &Watcher{
		cfg:     cfg,
		Store:   store,
		Pool:    waitpool.New(cfg.MaxReadyForUpload, cfg.FetchRefreshLimit),
		Cache:   cache,
		Persist: persist,
		Site:    site,
		Chat:    chat,
		Logger:  logger,
		Metrics: metrics,
	}
}

// Start spawns every configured stage worker and returns once they're
// running; it blocks until ctx is cancelled or Stop is called for the
// goroutines themselves, but Start itself returns immediately having
// launched them. Re-entrant starts fail with ErrAlreadyRunning.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return subwatcherr.ErrAlreadyRunning
	}
	if !w.cfg.Enabled {
		return nil
	}

	for _, id := range w.Pool.PendingIDs() {
		w.Pool.AddSubID(id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.runID = uuid.NewString()
	w.Logger.Info("starting subscription watcher", zap.String("run_id", w.runID),
		zap.Int("data_fetchers", w.cfg.NumDataFetchers),
		zap.Int("media_downloaders", w.cfg.NumMediaDownloaders),
		zap.Int("media_uploaders", w.cfg.NumMediaUploaders))

	for i := 0; i < w.cfg.NumDataFetchers; i++ {
		fetcher := workers.NewDataFetcher(w.Pool, w.Site, w.Store, w.Logger, w.Metrics)
		w.spawn(runCtx, fetcher)
	}
	for i := 0; i < w.cfg.NumMediaDownloaders; i++ {
		downloader := workers.NewMediaDownloader(w.Pool, w.Cache, w.Logger, w.Metrics)
		w.spawn(runCtx, downloader)
	}
	for i := 0; i < w.cfg.NumMediaUploaders; i++ {
		uploader := workers.NewMediaUploader(w.Pool, w.Cache, w.Chat, w.Logger, w.Metrics)
		w.spawn(runCtx, uploader)
	}
	sender := workers.NewSender(w.Pool, w.Cache, w.Chat, w.Store, w, w.Logger, w.Metrics)
	w.spawn(runCtx, sender)

	return nil
}

func (w *Watcher) spawn(ctx context.Context, r workers.Runnable) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		r.Run(ctx)
	}()
}

// Stop cancels every stage worker, waits for them to finish reverting
// their in-flight item, and persists the store's current state.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.Logger.Info("subscription watcher stopped", zap.String("run_id", w.runID))
	return w.persist(ctx)
}

// persist writes the subscription store and the pool's still-pending ids
// to disk.
func (w *Watcher) persist(ctx context.Context) error {
	if w.Persist == nil {
		return nil
	}
	ids := w.Pool.PendingIDs()
	if err := w.Persist.Save(ctx, w.Store, ids); err != nil {
		return fmt.Errorf("persist subscriptions: %w", err)
	}
	return nil
}

// LoadPersisted restores the subscription store and pending-fetch ids
// from disk. Call this before Start on process startup.
func (w *Watcher) LoadPersisted(ctx context.Context) error {
	if w.Persist == nil {
		return nil
	}
	store, ids, err := w.Persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	w.Store = store
	for _, id := range ids {
		w.Pool.AddSubID(id)
	}
	return nil
}

// UpdateLatestObserved records the posted_at time of the most recently
// sent submission. Implements workers.ProgressTracker.
func (w *Watcher) UpdateLatestObserved(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latestObserved = t
}

// UpdateLatestID records the id of the most recently sent submission.
// Implements workers.ProgressTracker.
func (w *Watcher) UpdateLatestID(id query.SubmissionID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latestID = id
}

// LatestObserved returns the posted_at time of the most recently sent
// submission.
func (w *Watcher) LatestObserved() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latestObserved
}

// LatestID returns the id of the most recently sent submission.
func (w *Watcher) LatestID() query.SubmissionID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latestID
}

// AddSubscription parses queryStr, adds it to the store for destination,
// and persists the change.
func (w *Watcher) AddSubscription(ctx context.Context, queryStr string, destination subscription.Destination) error {
	sub, err := subscription.New(queryStr, destination)
	if err != nil {
		return subwatcherr.NewInvalidQuery(queryStr, err)
	}
	if err := w.Store.AddSubscription(sub); err != nil {
		return err
	}
	return w.persist(ctx)
}

// RemoveSubscription removes queryStr's subscription at destination and
// persists the change.
func (w *Watcher) RemoveSubscription(ctx context.Context, queryStr string, destination subscription.Destination) error {
	if err := w.Store.RemoveSubscription(queryStr, destination); err != nil {
		return err
	}
	return w.persist(ctx)
}

// PauseSubscription pauses queryStr's subscription at destination and
// persists the change.
func (w *Watcher) PauseSubscription(ctx context.Context, queryStr string, destination subscription.Destination) error {
	if err := w.Store.PauseSubscription(queryStr, destination); err != nil {
		return err
	}
	return w.persist(ctx)
}

// ResumeSubscription resumes queryStr's subscription at destination and
// persists the change.
func (w *Watcher) ResumeSubscription(ctx context.Context, queryStr string, destination subscription.Destination) error {
	if err := w.Store.ResumeSubscription(queryStr, destination); err != nil {
		return err
	}
	return w.persist(ctx)
}

// PauseDestination pauses every subscription at destination and persists
// the change.
func (w *Watcher) PauseDestination(ctx context.Context, destination subscription.Destination) error {
	if err := w.Store.PauseDestination(destination); err != nil {
		return err
	}
	return w.persist(ctx)
}

// ResumeDestination resumes every subscription at destination and
// persists the change.
func (w *Watcher) ResumeDestination(ctx context.Context, destination subscription.Destination) error {
	if err := w.Store.ResumeDestination(destination); err != nil {
		return err
	}
	return w.persist(ctx)
}

// AddToBlocklist adds queryStr to destination's blocklist and persists
// the change.
func (w *Watcher) AddToBlocklist(ctx context.Context, destination subscription.Destination, queryStr string) error {
	if err := w.Store.AddToBlocklist(destination, queryStr); err != nil {
		return subwatcherr.NewInvalidQuery(queryStr, err)
	}
	return w.persist(ctx)
}

// RemoveFromBlocklist removes queryStr from destination's blocklist and
// persists the change.
func (w *Watcher) RemoveFromBlocklist(ctx context.Context, destination subscription.Destination, queryStr string) error {
	w.Store.RemoveFromBlocklist(destination, queryStr)
	return w.persist(ctx)
}
