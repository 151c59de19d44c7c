package workers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subwatcherr"
	"github.com/3leaps/subwatch/pkg/waitpool"
)

// connectionBackoff is how long a transport-level download failure waits
// before retrying, matching the original downloader's constant.
const connectionBackoff = 20 * time.Second

// MediaDownloader pulls each wait-pool entry ready for download, checks
// the submission cache first, and otherwise fetches the media from the
// art site, staging it locally for MediaUploader.
type MediaDownloader struct {
	Pool    *waitpool.Pool
	Cache   *submissioncache.Cache
	Logger  *zap.Logger
	Metrics Metrics

	lastProcessed    query.SubmissionID
	hasLastProcessed bool
}

// NewMediaDownloader builds a MediaDownloader.
func NewMediaDownloader(pool *waitpool.Pool, cache *submissioncache.Cache, logger *zap.Logger, metrics Metrics) *MediaDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &MediaDownloader{Pool: pool, Cache: cache, Logger: logger, Metrics: metrics}
}

// Run drives the stage until ctx is cancelled.
func (m *MediaDownloader) Run(ctx context.Context) {
	runLoop(ctx, "MediaDownloader", m.Logger, m.doProcess, m.RevertLastAttempt)
}

func (m *MediaDownloader) doProcess(ctx context.Context) {
	st, ok := m.Pool.GetNextForMediaDownload()
	if !ok {
		timeStage(m.Metrics, "MediaDownloader", "waiting for new events in queue", "waiting", func() {
			sleepWhileRunning(ctx, QueueBackoff)
		})
		return
	}
	m.lastProcessed, m.hasLastProcessed = st.SubID, true

	entry, hit, err := m.Cache.Load(ctx, st.SubID)
	if err == nil && hit {
		m.Metrics.IncCacheResult("MediaDownloader", true)
		timeStage(m.Metrics, "MediaDownloader", "publishing results to queues", "waiting", func() {
			m.Pool.SetUploaded(st.SubID, chatclient.UploadedMedia{HasMedia: true, FileRef: entry.FileRef})
		})
		m.Metrics.SetLatestID(uint64(st.SubID))
		return
	}
	m.Metrics.IncCacheResult("MediaDownloader", false)

	file, settings, derr := m.downloadWithRetry(ctx, st)
	if derr != nil {
		m.Logger.Error("media download failed, reverting for refetch", zap.Stringer("sub_id", st.SubID), zap.Error(derr))
		m.handleDownloadFailure(ctx, st)
		return
	}

	timeStage(m.Metrics, "MediaDownloader", "publishing results to queues", "waiting", func() {
		m.Pool.SetDownloaded(st.SubID, file, settings)
	})
	m.Metrics.SetLatestID(uint64(st.SubID))
}

// downloadWithRetry attempts the download once, then backs off and
// retries in place for both retryable HTTP statuses and connection-level
// errors (anything that isn't itself a *siteclient.StatusError); a 404 or
// any other permanent status is returned immediately for the caller to
// revert and refetch.
func (m *MediaDownloader) downloadWithRetry(ctx context.Context, st *waitpool.CheckState) (siteclient.DownloadedFile, siteclient.SendSettings, error) {
	var (
		file     siteclient.DownloadedFile
		settings siteclient.SendSettings
		err      error
	)
	for {
		timeStage(m.Metrics, "MediaDownloader", "downloading media from art site", "active", func() {
			file, settings, err = st.FullSub.Download(ctx)
		})
		if err == nil {
			return file, settings, nil
		}
		switch classifySiteErr(err) {
		case errClassRetryableStatus, errClassRetryableConnection:
			m.Logger.Warn("media download failed, retrying",
				zap.Error(err), zap.Duration("backoff", connectionBackoff))
			sleepWhileRunning(ctx, connectionBackoff)
			if ctx.Err() != nil {
				return file, settings, err
			}
			continue
		default:
			return file, settings, err
		}
	}
}

// handleDownloadFailure reverts the fetch for a submission whose media
// couldn't be downloaded, whether because it was deleted (404) or any
// other permanent failure; once the refresh limit is exhausted, the
// submission is finalized as a caption-only sentinel instead of being
// retried forever. full and matching are captured before the revert
// resets them, since RevertDataFetch's failure path needs the Sender to
// still have something to deliver.
func (m *MediaDownloader) handleDownloadFailure(ctx context.Context, st *waitpool.CheckState) {
	id, full, matching := st.SubID, st.FullSub, st.MatchingSubscriptions
	err := m.Pool.RevertDataFetch(id)
	if err == nil {
		return
	}
	if !subwatcherr.IsTooManyRefresh(err) {
		m.Logger.Error("failed to revert data fetch after download failure", zap.Error(err))
		return
	}
	m.Logger.Warn("sending submission without media, exceeded refresh limit", zap.Stringer("sub_id", id))
	sentinel := chatclient.UploadedMedia{HasMedia: false, TextOnly: true}
	m.Pool.FinalizeWithoutMedia(id, full, matching, sentinel)
}

// RevertLastAttempt re-fetches the last submission this stage was
// downloading media for, since something may have changed.
func (m *MediaDownloader) RevertLastAttempt(ctx context.Context) error {
	if !m.hasLastProcessed {
		return errors.New("no previous download attempt to revert")
	}
	return m.Pool.RevertDataFetch(m.lastProcessed)
}
