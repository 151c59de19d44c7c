package waitpool

import (
	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subscription"
)

// CheckState tracks one submission as it moves through data fetch, media
// download, media upload, and send. A state lives in the pool's
// submission_state set from the moment its id is queued until it is
// popped for send; it additionally lives in the active_states subset
// once its full metadata has been fetched, and stays there across
// refetches so the in-flight stage workers never lose track of it.
type CheckState struct {
	SubID query.SubmissionID

	FullSub siteclient.FullSub

	MatchingSubscriptions []*subscription.Subscription

	MediaDownloading bool
	MediaUploading   bool

	DownloadedFile  *siteclient.DownloadedFile
	SendSettings    *siteclient.SendSettings
	UploadedMedia   *chatclient.UploadedMedia

	SentTo map[subscription.Destination]bool
}

// newCheckState builds an empty tracking entry for a freshly queued
// submission id.
func newCheckState(id query.SubmissionID) *CheckState {
	return &CheckState{SubID: id, SentTo: make(map[subscription.Destination]bool)}
}

// Key orders states by submission id, the pool's FIFO tie-breaker for
// both stage selection and the final send scan.
func (s *CheckState) Key() query.SubmissionID {
	return s.SubID
}

// Reset clears every per-fetch field ahead of a refetch, preserving only
// the submission id and the set of destinations already sent to: a
// refetch must not re-send somewhere delivery already succeeded.
func (s *CheckState) Reset() {
	s.FullSub = nil
	s.MatchingSubscriptions = nil
	s.MediaDownloading = false
	s.MediaUploading = false
	s.DownloadedFile = nil
	s.SendSettings = nil
	s.UploadedMedia = nil
}

// IsReadyForMediaDownload reports whether s has fetched data, has at
// least one matching subscription, isn't already downloading, and has no
// file yet.
func (s *CheckState) IsReadyForMediaDownload() bool {
	return s.FullSub != nil &&
		len(s.MatchingSubscriptions) > 0 &&
		!s.MediaDownloading &&
		s.DownloadedFile == nil &&
		s.UploadedMedia == nil
}

// IsReadyForMediaUpload reports whether s has a downloaded file staged
// locally, isn't already uploading, and has no uploaded media yet.
func (s *CheckState) IsReadyForMediaUpload() bool {
	return s.FullSub != nil &&
		s.DownloadedFile != nil &&
		!s.MediaUploading &&
		s.UploadedMedia == nil
}

// IsReadyToSend reports whether s has fetched data and either has no
// matching subscriptions left to notify (send pass is a no-op, but the
// id must still be popped to free the pool), or has finished uploading
// its media (or been given a text-only sentinel upload).
func (s *CheckState) IsReadyToSend() bool {
	if s.FullSub == nil {
		return false
	}
	if len(s.MatchingSubscriptions) == 0 {
		return true
	}
	return s.UploadedMedia != nil
}
