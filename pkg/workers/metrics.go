package workers

import "time"

// Metrics is the narrow set of instruments the stage workers and Sender
// record against; internal/metrics provides the production
// prometheus-backed implementation, wired in by the watcher at
// construction time so this package never imports internal/.
type Metrics interface {
	ObserveDuration(runnable, task, taskType string, d time.Duration)
	IncCacheResult(stage string, hit bool)
	IncSubUpdates()
	IncDestBlocked()
	ObserveFloodWait(seconds float64)
	IncFilePartMissing()
	IncSendFailure()
	IncMessagesSent(mediaType string)
	ObserveSendAttempts(result string, attempts int)
	SetLatestID(id uint64)
}

// NoopMetrics discards every observation, for tests and for runs where
// metrics export is disabled.
type NoopMetrics struct{}

func (NoopMetrics) ObserveDuration(string, string, string, time.Duration) {}
func (NoopMetrics) IncCacheResult(string, bool)                           {}
func (NoopMetrics) IncSubUpdates()                                        {}
func (NoopMetrics) IncDestBlocked()                                       {}
func (NoopMetrics) ObserveFloodWait(float64)                              {}
func (NoopMetrics) IncFilePartMissing()                                   {}
func (NoopMetrics) IncSendFailure()                                       {}
func (NoopMetrics) IncMessagesSent(string)                                {}
func (NoopMetrics) ObserveSendAttempts(string, int)                       {}
func (NoopMetrics) SetLatestID(uint64)                                    {}

// timeStage records how long fn took against the given labels, mirroring
// the original's TimeKeeper/time_taken Summary pattern.
func timeStage(m Metrics, runnable, task, taskType string, fn func()) {
	start := time.Now()
	fn()
	m.ObserveDuration(runnable, task, taskType, time.Since(start))
}
