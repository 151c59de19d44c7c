package workers

import (
	"errors"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/siteclient"
)

// errClass names a dispatch bucket for a transport-level failure
// encountered while fetching metadata, downloading media, or talking to
// the chat platform.
type errClass int

const (
	errClassPermanent errClass = iota
	errClassRetryableStatus
	errClassRetryableConnection
	errClassNotFound
	errClassBlocked
)

// retryableStatusCodes mirrors the original subscription downloader's
// retry list: upstream edge/gateway hiccups and a handful of origin
// errors worth a single backoff-and-retry rather than bubbling up.
var retryableStatusCodes = map[int]bool{
	502: true,
	520: true,
	522: true,
	403: true,
	524: true,
}

// classifyStatus dispatches an HTTP status code from a site fetch to a
// retry bucket.
func classifyStatus(status int) errClass {
	switch {
	case status == 404:
		return errClassNotFound
	case retryableStatusCodes[status]:
		return errClassRetryableStatus
	default:
		return errClassPermanent
	}
}

// classifySiteErr dispatches an error from the site client — DataFetcher's
// metadata fetch or MediaDownloader's binary download — to a retry
// bucket. An error that isn't a *siteclient.StatusError at all is a
// connection-level failure and always retryable, matching spec's
// "transient 5xx or connection errors back off and retry" rule.
func classifySiteErr(err error) errClass {
	var se *siteclient.StatusError
	if !errors.As(err, &se) {
		return errClassRetryableConnection
	}
	return classifyStatus(se.Status)
}

// classifyChatErr dispatches an error from the chat client — MediaUploader's
// upload — to the same buckets. A blocked/deactivated destination is
// permanent from this stage's point of view (only the Sender pauses it); a
// missing file part means the local sandbox copy is stale and the
// submission must be fetched afresh, the same recovery as a not-found
// media download; anything else is a connection-level failure worth
// retrying.
func classifyChatErr(err error) errClass {
	var blocked *chatclient.BlockedError
	if errors.As(err, &blocked) {
		return errClassBlocked
	}
	var filePartMissing *chatclient.FilePartMissingError
	if errors.As(err, &filePartMissing) {
		return errClassNotFound
	}
	return errClassRetryableConnection
}
