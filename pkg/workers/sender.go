package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

// waitBetweenFloodLogs is how often the Sender re-logs progress while
// sleeping out a flood-wait period, matching the original's constant.
const waitBetweenFloodLogs = 60 * time.Second

// sendAttempts is how many times the Sender retries a single
// destination before giving up, matching the original's constant.
const sendAttempts = 3

// PauseStore is the subset of subscription.Store the Sender needs:
// re-checking matches and pausing a blocked destination's subscriptions.
type PauseStore interface {
	Matcher
	MatchingAmong(target *query.QueryTarget, candidates []*subscription.Subscription) []*subscription.Subscription
	PauseDestination(destination subscription.Destination) error
}

// ProgressTracker receives the watcher-level bookkeeping the Sender
// updates after each successful send: the latest observed post time and
// the latest checked submission id. Both are held in memory only;
// pkg/subpersist does not write them.
type ProgressTracker interface {
	UpdateLatestObserved(t time.Time)
	UpdateLatestID(id query.SubmissionID)
}

// Sender is the final stage: it pops the lowest-id submission ready to
// send, re-checks its matching subscriptions, and delivers it (from
// cache, from already-uploaded media, or as a text-only sentinel) to
// every destination that hasn't already received it.
type Sender struct {
	Pool    *waitpool.Pool
	Cache   *submissioncache.Cache
	Chat    chatclient.Client
	Store   PauseStore
	Tracker ProgressTracker
	Logger  *zap.Logger
	Metrics Metrics

	lastState *waitpool.CheckState
}

// NewSender builds a Sender.
func NewSender(pool *waitpool.Pool, cache *submissioncache.Cache, chat chatclient.Client, store PauseStore, tracker ProgressTracker, logger *zap.Logger, metrics Metrics) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Sender{Pool: pool, Cache: cache, Chat: chat, Store: store, Tracker: tracker, Logger: logger, Metrics: metrics}
}

// Run drives the stage until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) {
	runLoop(ctx, "Sender", s.Logger, s.doProcess, s.RevertLastAttempt)
}

func (s *Sender) doProcess(ctx context.Context) {
	var st *waitpool.CheckState
	var ok bool
	timeStage(s.Metrics, "Sender", "reading wait-pool for new data", "active", func() {
		st, ok = s.Pool.PopNextReadyToSend()
	})
	if !ok {
		timeStage(s.Metrics, "Sender", "waiting for new events in queue", "waiting", func() {
			sleepWhileRunning(ctx, QueueBackoff)
		})
		return
	}
	s.lastState = st

	s.sendUpdates(ctx, st)

	if s.Tracker != nil {
		s.Tracker.UpdateLatestObserved(st.FullSub.PostedAt())
		s.Tracker.UpdateLatestID(st.SubID)
	}
	s.Metrics.SetLatestID(uint64(st.SubID))
}

func (s *Sender) sendUpdates(ctx context.Context, st *waitpool.CheckState) {
	var matched []*subscription.Subscription
	timeStage(s.Metrics, "Sender", "checking whether submission matches subscriptions", "active", func() {
		if len(st.MatchingSubscriptions) > 0 {
			matched = s.Store.MatchingAmong(st.FullSub.Target(), st.MatchingSubscriptions)
		} else {
			matched = s.Store.MatchingAll(st.FullSub.Target())
		}
	})

	byDestination := make(map[subscription.Destination][]*subscription.Subscription)
	for _, sub := range matched {
		byDestination[sub.Destination] = append(byDestination[sub.Destination], sub)
	}

	timeStage(s.Metrics, "Sender", "sending messages to subscriptions", "active", func() {
		for dest, subs := range byDestination {
			if st.SentTo[dest] {
				continue
			}
			prefix := subscriptionPrefix(subs)
			s.trySendToDestination(ctx, st, dest, prefix)
		}
	})
}

// subscriptionPrefix renders the "Update on ..." prefix line listing
// every subscription query that matched, matching the original's exact
// wording and pluralization.
func subscriptionPrefix(subs []*subscription.Subscription) string {
	queries := make([]string, 0, len(subs))
	for _, sub := range subs {
		queries = append(queries, fmt.Sprintf("%q", sub.QueryStr))
	}
	plural := "s"
	if len(subs) == 1 {
		plural = ""
	}
	return fmt.Sprintf("Update on %s subscription%s:", strings.Join(queries, ", "), plural)
}

func (s *Sender) trySendToDestination(ctx context.Context, st *waitpool.CheckState, dest subscription.Destination, prefix string) {
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		s.Metrics.IncSubUpdates()
		err := s.sendOnce(ctx, st, dest, prefix)
		if err == nil {
			st.SentTo[dest] = true
			s.Metrics.ObserveSendAttempts("success", attempt)
			return
		}

		var blocked *chatclient.BlockedError
		var flood *chatclient.FloodWaitError
		var filePartMissing *chatclient.FilePartMissingError

		switch {
		case errors.As(err, &blocked):
			s.Metrics.IncDestBlocked()
			s.Logger.Info("destination blocked or deleted, pausing subscriptions", zap.Any("destination", dest))
			_ = s.Store.PauseDestination(dest)
			s.Metrics.ObserveSendAttempts("blocked", attempt)
			return

		case errors.As(err, &flood):
			s.Metrics.ObserveFloodWait(float64(flood.Seconds))
			s.Logger.Warn("flood wait requested, sleeping", zap.Int("seconds", flood.Seconds))
			s.floodWait(ctx, time.Duration(flood.Seconds)*time.Second)
			continue

		case errors.As(err, &filePartMissing):
			s.Metrics.IncFilePartMissing()
			s.Logger.Warn("file part missing, resetting cache and re-fetching", zap.Stringer("sub_id", st.SubID))
			_ = s.Pool.RevertDataFetch(st.SubID)
			s.Metrics.ObserveSendAttempts("file_part_missing", attempt)
			return

		case subwatcherr.IsMediaMissing(err):
			s.Metrics.IncSendFailure()
			s.Logger.Warn("submission has no uploaded or cached media, resetting cache", zap.Stringer("sub_id", st.SubID))
			_ = s.Pool.RevertDataFetch(st.SubID)
			return

		default:
			s.Metrics.IncSendFailure()
			s.Logger.Error("failed to send submission", zap.Stringer("sub_id", st.SubID), zap.Any("destination", dest), zap.Error(err))
			s.Metrics.ObserveSendAttempts("failed", attempt)
			return
		}
	}
}

func (s *Sender) sendOnce(ctx context.Context, st *waitpool.CheckState, dest subscription.Destination, prefix string) error {
	if cached, hit, _ := s.Cache.Load(ctx, st.SubID); hit {
		sent, err := s.Chat.SendMessage(ctx, dest, prefix, chatclient.UploadedMedia{HasMedia: true, FileRef: cached.FileRef})
		if err != nil {
			return err
		}
		ok, err := sent.TryToSend(ctx, dest, prefix)
		if err == nil && ok {
			s.Metrics.IncMessagesSent("cached")
			return nil
		}
		if err != nil {
			return err
		}
	}

	if st.UploadedMedia == nil {
		return subwatcherr.ErrMediaMissing
	}

	sent, err := s.Chat.SendMessage(ctx, dest, prefix, *st.UploadedMedia)
	if err != nil {
		return err
	}
	_, err = sent.TryToSend(ctx, dest, prefix)
	if err != nil {
		return err
	}
	s.Metrics.IncMessagesSent("upload")
	if st.UploadedMedia.HasMedia {
		_ = s.Cache.Save(ctx, submissioncache.Entry{SubID: st.SubID, FileRef: st.UploadedMedia.FileRef})
	}
	return nil
}

// floodWait sleeps for d, logging progress every waitBetweenFloodLogs so
// a long flood wait doesn't look like a hang.
func (s *Sender) floodWait(ctx context.Context, d time.Duration) {
	end := time.Now().Add(d)
	for {
		remaining := time.Until(end)
		if remaining <= 0 {
			s.Logger.Info("flood wait complete")
			return
		}
		batch := remaining
		if batch > waitBetweenFloodLogs {
			batch = waitBetweenFloodLogs
		}
		s.Logger.Warn("waiting for flood warning to expire", zap.Duration("remaining", remaining))
		sleepWhileRunning(ctx, batch)
		if ctx.Err() != nil {
			return
		}
	}
}

// RevertLastAttempt hands the submission this Sender last popped back to
// the wait pool. Since there is only ever one Sender, this cannot race
// another Sender grabbing a newer submission out of order.
func (s *Sender) RevertLastAttempt(ctx context.Context) error {
	if s.lastState == nil {
		return errors.New("no previous send attempt to revert")
	}
	s.Pool.ReturnPopulatedState(s.lastState)
	return nil
}
