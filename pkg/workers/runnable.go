// Package workers implements the four pipeline stages that drive
// submissions from a bare id through to delivery: DataFetcher,
// MediaDownloader, MediaUploader, and Sender.
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// QueueBackoff is how long a stage sleeps after finding nothing ready to
// process, before polling again.
const QueueBackoff = 5 * time.Second

// Runnable is one pipeline stage: a goroutine looping doProcess until its
// context is cancelled. RevertLastAttempt hands the in-flight item (if
// any) back to the wait pool so a mid-shutdown cancellation doesn't lose
// work silently.
type Runnable interface {
	Run(ctx context.Context)
	RevertLastAttempt(ctx context.Context) error
}

// runLoop is the shared driver every stage's Run method calls: loop
// doProcess until ctx is done, then attempt one RevertLastAttempt so the
// item it was last holding goes back to the wait pool instead of
// vanishing.
func runLoop(ctx context.Context, name string, logger *zap.Logger, doProcess func(ctx context.Context), revert func(ctx context.Context) error) {
	for {
		select {
		case <-ctx.Done():
			if err := revert(context.Background()); err != nil {
				logger.Debug("nothing to revert on shutdown", zap.String("stage", name), zap.Error(err))
			}
			return
		default:
		}
		doProcess(ctx)
	}
}

// sleepWhileRunning sleeps for d or until ctx is cancelled, whichever
// comes first.
func sleepWhileRunning(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
