// Package siteclient declares the external site interfaces the core
// pipeline consumes: browsing for new submissions, fetching full metadata,
// and downloading the underlying media file.
package siteclient

import (
	"context"
	"time"

	"github.com/3leaps/subwatch/pkg/query"
)

// ShortSub is a submission summary as returned by browsing the site's
// recent-submissions listing: enough to know an id exists, not enough to
// evaluate any subscription against it.
type ShortSub struct {
	SubID query.SubmissionID
}

// FullSub is a submission's complete metadata, enough to build a
// QueryTarget and, later, to download its media.
type FullSub interface {
	SubID() query.SubmissionID
	Target() *query.QueryTarget
	PostedAt() time.Time
	Download(ctx context.Context) (DownloadedFile, SendSettings, error)
}

// DownloadedFile is a media file pulled to local storage, staged for
// upload to the chat platform.
type DownloadedFile struct {
	LocalPath   string
	ContentType string
	SizeBytes   int64
}

// CaptionSettings controls which parts of a submission's metadata are
// included in the caption sent alongside (or instead of) its media.
type CaptionSettings struct {
	IncludeTitle       bool
	IncludeDescription bool
	IncludeArtist      bool
	IncludeLink        bool
}

// SendSettings controls how a submission's media is delivered: which
// caption fields to include, and whether delivery may fall back to a
// text-only message when media is unavailable.
type SendSettings struct {
	Caption     CaptionSettings
	Spoiler     bool
	TextOnly    bool
}

// Client is the site-facing API the DataFetcher stage drives.
type Client interface {
	GetBrowsePage(ctx context.Context) ([]ShortSub, error)
	GetFullSubmission(ctx context.Context, id query.SubmissionID) (FullSub, error)
}

// StatusError carries an HTTP status code from a site or media fetch, so
// callers can dispatch on the exact retry/permanent-failure classes the
// stage workers define.
type StatusError struct {
	Status int
	Op     string
}

func (e *StatusError) Error() string {
	return statusErrorMessage(e.Op, e.Status)
}

func statusErrorMessage(op string, status int) string {
	return op + ": status " + itoaStatus(status)
}

func itoaStatus(status int) string {
	if status == 0 {
		return "0"
	}
	neg := status < 0
	if neg {
		status = -status
	}
	var buf [8]byte
	i := len(buf)
	for status > 0 {
		i--
		buf[i] = byte('0' + status%10)
		status /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
