// Package fake implements an in-memory chatclient.Client for tests:
// every upload and send succeeds by default, with per-destination
// scripted errors available to exercise the Sender's and MediaUploader's
// blocked/flood-wait/file-part-missing dispatch paths.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/3leaps/subwatch/pkg/chatclient"
	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
	"github.com/3leaps/subwatch/pkg/subscription"
)

// Client is a fixed, in-memory chatclient.Client.
type Client struct {
	mu sync.Mutex

	// SendErrs, keyed by destination, is consumed in FIFO order on
	// successive SendMessage calls to that destination before messages
	// start succeeding.
	SendErrs map[subscription.Destination][]error

	// UploadErrs, keyed by destination, is consumed in FIFO order on
	// successive UploadOnly calls to that destination before uploads
	// start succeeding.
	UploadErrs map[subscription.Destination][]error

	Uploaded []UploadCall
	Sent     []SendCall

	nextFileRef int
}

// UploadCall records one UploadOnly invocation.
type UploadCall struct {
	Destination subscription.Destination
	File        siteclient.DownloadedFile
}

// SendCall records one SendMessage invocation.
type SendCall struct {
	Destination subscription.Destination
	Prefix      string
	Media       chatclient.UploadedMedia
}

// New builds an empty fake client.
func New() *Client {
	return &Client{
		SendErrs:   make(map[subscription.Destination][]error),
		UploadErrs: make(map[subscription.Destination][]error),
	}
}

// UploadOnly stages file for destination and returns a synthetic file
// reference, unless a scripted error is queued for destination.
func (c *Client) UploadOnly(ctx context.Context, destination subscription.Destination, file siteclient.DownloadedFile, settings siteclient.SendSettings) (chatclient.UploadedMedia, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if errs := c.UploadErrs[destination]; len(errs) > 0 {
		err := errs[0]
		c.UploadErrs[destination] = errs[1:]
		return chatclient.UploadedMedia{}, err
	}

	c.Uploaded = append(c.Uploaded, UploadCall{Destination: destination, File: file})
	c.nextFileRef++
	return chatclient.UploadedMedia{HasMedia: true, FileRef: fmt.Sprintf("fake-ref-%d", c.nextFileRef)}, nil
}

// SendMessage records the send and returns a sentSubmission that always
// succeeds, unless a scripted error is queued for destination.
func (c *Client) SendMessage(ctx context.Context, destination subscription.Destination, prefix string, media chatclient.UploadedMedia) (chatclient.SentSubmission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if errs := c.SendErrs[destination]; len(errs) > 0 {
		err := errs[0]
		c.SendErrs[destination] = errs[1:]
		return nil, err
	}

	c.Sent = append(c.Sent, SendCall{Destination: destination, Prefix: prefix, Media: media})
	return &sentSubmission{media: media}, nil
}

type sentSubmission struct {
	media chatclient.UploadedMedia
}

func (s *sentSubmission) SubID() query.SubmissionID { return 0 }

func (s *sentSubmission) TryToSend(ctx context.Context, destination subscription.Destination, prefix string) (bool, error) {
	return true, nil
}
