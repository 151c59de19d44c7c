// Package fake implements an in-memory siteclient.Client for tests: a
// fixed set of submissions fed in ahead of time, with an optional queue
// of synthetic errors to exercise retry/backoff paths. It carries no
// network dependency, in the same spirit as the teacher's pkg/provider/file
// local-filesystem stand-in for a real cloud provider.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/3leaps/subwatch/pkg/query"
	"github.com/3leaps/subwatch/pkg/siteclient"
)

// Submission is a canned full submission this fake will serve.
type Submission struct {
	ID       query.SubmissionID
	Target   *query.QueryTarget
	Posted   time.Time
	File     siteclient.DownloadedFile
	Settings siteclient.SendSettings

	// DownloadErrs is consumed in order on successive Download calls
	// before the fixed File/Settings are returned; use it to simulate a
	// transient failure followed by success.
	DownloadErrs []error
	downloadPos  int
}

// Client is a fixed, in-memory siteclient.Client.
type Client struct {
	mu sync.Mutex

	browsePage []siteclient.ShortSub
	byID       map[query.SubmissionID]*Submission

	// FetchErrs, keyed by id, is returned once (then cleared) by
	// GetFullSubmission, to simulate a transient metadata-fetch failure.
	FetchErrs map[query.SubmissionID]error
}

// New builds an empty fake client.
func New() *Client {
	return &Client{
		byID:      make(map[query.SubmissionID]*Submission),
		FetchErrs: make(map[query.SubmissionID]error),
	}
}

// AddSubmission registers sub as both browsable and fetchable.
func (c *Client) AddSubmission(sub Submission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := sub
	c.byID[s.ID] = &s
	c.browsePage = append(c.browsePage, siteclient.ShortSub{SubID: s.ID})
}

// GetBrowsePage returns every registered submission's short form.
func (c *Client) GetBrowsePage(ctx context.Context) ([]siteclient.ShortSub, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]siteclient.ShortSub, len(c.browsePage))
	copy(out, c.browsePage)
	return out, nil
}

// GetFullSubmission returns the registered submission for id, or a 404
// StatusError if it was never registered.
func (c *Client) GetFullSubmission(ctx context.Context, id query.SubmissionID) (siteclient.FullSub, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.FetchErrs[id]; ok {
		delete(c.FetchErrs, id)
		return nil, err
	}

	sub, ok := c.byID[id]
	if !ok {
		return nil, &siteclient.StatusError{Status: 404, Op: "GetFullSubmission"}
	}
	return &fullSub{client: c, sub: sub}, nil
}

type fullSub struct {
	client *Client
	sub    *Submission
}

func (f *fullSub) SubID() query.SubmissionID    { return f.sub.ID }
func (f *fullSub) Target() *query.QueryTarget   { return f.sub.Target }
func (f *fullSub) PostedAt() time.Time          { return f.sub.Posted }

func (f *fullSub) Download(ctx context.Context) (siteclient.DownloadedFile, siteclient.SendSettings, error) {
	f.client.mu.Lock()
	defer f.client.mu.Unlock()

	if f.sub.downloadPos < len(f.sub.DownloadErrs) {
		err := f.sub.DownloadErrs[f.sub.downloadPos]
		f.sub.downloadPos++
		return siteclient.DownloadedFile{}, siteclient.SendSettings{}, err
	}
	return f.sub.File, f.sub.Settings, nil
}
