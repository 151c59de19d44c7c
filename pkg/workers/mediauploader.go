package workers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

// MediaUploader pulls each wait-pool entry with a locally staged media
// file and uploads it to the chat platform, ahead of any Sender
// attempting delivery.
type MediaUploader struct {
	Pool    *waitpool.Pool
	Cache   *submissioncache.Cache
	Chat    chatclient.Client
	Logger  *zap.Logger
	Metrics Metrics

	lastProcessed    query.SubmissionID
	hasLastProcessed bool
}

// NewMediaUploader builds a MediaUploader.
func NewMediaUploader(pool *waitpool.Pool, cache *submissioncache.Cache, chat chatclient.Client, logger *zap.Logger, metrics Metrics) *MediaUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &MediaUploader{Pool: pool, Cache: cache, Chat: chat, Logger: logger, Metrics: metrics}
}

// Run drives the stage until ctx is cancelled.
func (m *MediaUploader) Run(ctx context.Context) {
	runLoop(ctx, "MediaUploader", m.Logger, m.doProcess, m.RevertLastAttempt)
}

func (m *MediaUploader) doProcess(ctx context.Context) {
	st, ok := m.Pool.GetNextForMediaUpload()
	if !ok {
		timeStage(m.Metrics, "MediaUploader", "waiting for new events in queue", "waiting", func() {
			sleepWhileRunning(ctx, QueueBackoff)
		})
		return
	}
	m.lastProcessed, m.hasLastProcessed = st.SubID, true

	entry, hit, err := m.Cache.Load(ctx, st.SubID)
	if err == nil && hit {
		m.Metrics.IncCacheResult("MediaUploader", true)
		timeStage(m.Metrics, "MediaUploader", "publishing results to queues", "waiting", func() {
			m.Pool.SetUploaded(st.SubID, chatclient.UploadedMedia{HasMedia: true, FileRef: entry.FileRef})
		})
		m.Metrics.SetLatestID(uint64(st.SubID))
		return
	}
	m.Metrics.IncCacheResult("MediaUploader", false)

	var destination subscription.Destination
	if len(st.MatchingSubscriptions) > 0 {
		destination = st.MatchingSubscriptions[0].Destination
	}

	uploaded, uerr := m.uploadWithRetry(ctx, st, destination)
	if uerr != nil {
		m.Logger.Error("media upload failed, reverting for refetch", zap.Stringer("sub_id", st.SubID), zap.Error(uerr))
		m.handleUploadFailure(st)
		return
	}

	timeStage(m.Metrics, "MediaUploader", "publishing results to queues", "waiting", func() {
		m.Pool.SetUploaded(st.SubID, uploaded)
	})
	m.Metrics.SetLatestID(uint64(st.SubID))
}

// uploadWithRetry attempts the upload once, then applies the same retry
// policy as MediaDownloader's download: a flood-wait response sleeps out
// the requested duration and retries in place; a connection-level error
// backs off on the same connectionBackoff schedule. A blocked
// destination or a missing file part is returned immediately for the
// caller to revert and refetch, matching Sender's recovery for the same
// errors.
func (m *MediaUploader) uploadWithRetry(ctx context.Context, st *waitpool.CheckState, dest subscription.Destination) (chatclient.UploadedMedia, error) {
	var (
		uploaded chatclient.UploadedMedia
		err      error
	)
	for {
		timeStage(m.Metrics, "MediaUploader", "uploading media to telegram", "active", func() {
			uploaded, err = m.Chat.UploadOnly(ctx, dest, *st.DownloadedFile, *st.SendSettings)
		})
		if err == nil {
			return uploaded, nil
		}

		var flood *chatclient.FloodWaitError
		if errors.As(err, &flood) {
			m.Logger.Warn("flood wait requested, sleeping", zap.Int("seconds", flood.Seconds))
			m.floodWait(ctx, time.Duration(flood.Seconds)*time.Second)
			if ctx.Err() != nil {
				return uploaded, err
			}
			continue
		}

		if classifyChatErr(err) == errClassRetryableConnection {
			m.Logger.Warn("media upload failed, retrying", zap.Error(err), zap.Duration("backoff", connectionBackoff))
			sleepWhileRunning(ctx, connectionBackoff)
			if ctx.Err() != nil {
				return uploaded, err
			}
			continue
		}

		return uploaded, err
	}
}

// handleUploadFailure reverts the fetch for a submission whose media
// couldn't be uploaded; once the refresh limit is exhausted, the
// submission is finalized as a caption-only sentinel instead of being
// retried forever, mirroring MediaDownloader's handling of the same
// exhaustion case. full and matching are captured before the revert
// resets them.
func (m *MediaUploader) handleUploadFailure(st *waitpool.CheckState) {
	id, full, matching := st.SubID, st.FullSub, st.MatchingSubscriptions
	err := m.Pool.RevertDataFetch(id)
	if err == nil {
		return
	}
	if !subwatcherr.IsTooManyRefresh(err) {
		m.Logger.Error("failed to revert data fetch after upload failure", zap.Error(err))
		return
	}
	m.Logger.Warn("sending submission without media, exceeded refresh limit", zap.Stringer("sub_id", id))
	sentinel := chatclient.UploadedMedia{HasMedia: false, TextOnly: true}
	m.Pool.FinalizeWithoutMedia(id, full, matching, sentinel)
}

// floodWait sleeps for d, logging progress every waitBetweenFloodLogs so
// a long flood wait doesn't look like a hang.
func (m *MediaUploader) floodWait(ctx context.Context, d time.Duration) {
	end := time.Now().Add(d)
	for {
		remaining := time.Until(end)
		if remaining <= 0 {
			m.Logger.Info("flood wait complete")
			return
		}
		batch := remaining
		if batch > waitBetweenFloodLogs {
			batch = waitBetweenFloodLogs
		}
		m.Logger.Warn("waiting for flood warning to expire", zap.Duration("remaining", remaining))
		sleepWhileRunning(ctx, batch)
		if ctx.Err() != nil {
			return
		}
	}
}

// RevertLastAttempt re-fetches the last submission this stage was
// uploading media for, since something may have changed.
func (m *MediaUploader) RevertLastAttempt(ctx context.Context) error {
	if !m.hasLastProcessed {
		return errors.New("no previous upload attempt to revert")
	}
	return m.Pool.RevertDataFetch(m.lastProcessed)
}
