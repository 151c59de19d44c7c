// Package chatclient declares the external chat-platform interfaces the
// MediaUploader and Sender stages drive: uploading media ahead of time,
// and sending a submission to a destination chat.
package chatclient

import (
	"context"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subscription"
)

// UploadedMedia is a file already staged on the chat platform's servers,
// ready to attach to a message without re-uploading. A sentinel
// UploadedMedia with HasMedia false and TextOnly true represents a
// submission whose media could not be fetched but whose metadata should
// still be sent as a text-only message.
type UploadedMedia struct {
	HasMedia  bool
	FileRef   string
	TextOnly  bool
}

// SentSubmission is a submission queued to be delivered to one or more
// destinations; TryToSend attempts delivery to a single destination and
// reports whether the message was delivered.
type SentSubmission interface {
	SubID() query.SubmissionID
	TryToSend(ctx context.Context, destination subscription.Destination, prefix string) (bool, error)
}

// Client is the chat-facing API the MediaUploader and Sender stages
// drive.
type Client interface {
	UploadOnly(ctx context.Context, destination subscription.Destination, file siteclient.DownloadedFile, settings siteclient.SendSettings) (UploadedMedia, error)
	SendMessage(ctx context.Context, destination subscription.Destination, prefix string, media UploadedMedia) (SentSubmission, error)
}

// BlockedError reports that a destination has blocked, deactivated, or
// otherwise become unreachable, so its subscriptions should be paused
// rather than retried.
type BlockedError struct {
	Destination subscription.Destination
	Reason      string
}

func (e *BlockedError) Error() string {
	return "destination blocked: " + e.Reason
}

// FloodWaitError reports that the chat platform asked the client to back
// off for a fixed duration before retrying.
type FloodWaitError struct {
	Seconds int
}

func (e *FloodWaitError) Error() string {
	return "flood wait requested"
}

// FilePartMissingError reports that the chat platform lost track of a
// previously uploaded file part, so the upload must be redone from
// scratch rather than retried as-is.
type FilePartMissingError struct{}

func (e *FilePartMissingError) Error() string {
	return "file part missing"
}
