// Package metrics implements pkg/workers.Metrics against
// prometheus/client_golang, reproducing the instrument names and labels
// the original fa_search_bot subscription watcher's sender/downloader/
// uploader registered.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the prometheus-backed implementation of pkg/workers.Metrics.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	cacheResult   *prometheus.CounterVec
	subUpdates    prometheus.Counter
	destBlocked   prometheus.Counter
	floodWait     prometheus.Histogram
	filePartMiss  prometheus.Counter
	sendFailure   prometheus.Counter
	messagesSent  *prometheus.CounterVec
	sendAttempts  *prometheus.HistogramVec
	latestID      prometheus.Gauge
}

// New registers every instrument against reg and returns the bound
// Metrics. Passing prometheus.NewRegistry() (rather than the global
// DefaultRegisterer) keeps tests hermetic.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "subwatch",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in one stage-worker task, by runnable, task, and task type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"runnable", "task", "task_type"}),

		cacheResult: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "cache_result_total",
			Help:      "Submission cache lookups, by stage and hit/miss.",
		}, []string{"stage", "result"}),

		subUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "subscription_updates_total",
			Help:      "Subscription updates successfully dispatched to at least one destination.",
		}),

		destBlocked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "destinations_blocked_total",
			Help:      "Destinations paused after a chat platform reported them blocked or deactivated.",
		}),

		floodWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "subwatch",
			Name:      "flood_wait_seconds",
			Help:      "Seconds slept due to a chat platform flood-wait response.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		filePartMiss: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "file_part_missing_total",
			Help:      "Sends aborted because the uploaded media's file parts were no longer available.",
		}),

		sendFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "send_failure_total",
			Help:      "Sends that failed after exhausting every retry attempt.",
		}),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subwatch",
			Name:      "messages_sent_total",
			Help:      "Messages sent to a destination, by media type (cached, upload).",
		}, []string{"media_type"}),

		sendAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "subwatch",
			Name:      "send_attempts",
			Help:      "Number of attempts a send took to resolve, by outcome.",
			Buckets:   []float64{1, 2, 3},
		}, []string{"result"}),

		latestID: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "subwatch",
			Name:      "latest_submission_id",
			Help:      "Id of the most recently dispatched submission.",
		}),
	}
}

func (m *Metrics) ObserveDuration(runnable, task, taskType string, d time.Duration) {
	m.stageDuration.WithLabelValues(runnable, task, taskType).Observe(d.Seconds())
}

func (m *Metrics) IncCacheResult(stage string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheResult.WithLabelValues(stage, result).Inc()
}

func (m *Metrics) IncSubUpdates() { m.subUpdates.Inc() }

func (m *Metrics) IncDestBlocked() { m.destBlocked.Inc() }

func (m *Metrics) ObserveFloodWait(seconds float64) { m.floodWait.Observe(seconds) }

func (m *Metrics) IncFilePartMissing() { m.filePartMiss.Inc() }

func (m *Metrics) IncSendFailure() { m.sendFailure.Inc() }

func (m *Metrics) IncMessagesSent(mediaType string) {
	m.messagesSent.WithLabelValues(mediaType).Inc()
}

func (m *Metrics) ObserveSendAttempts(result string, attempts int) {
	m.sendAttempts.WithLabelValues(result).Observe(float64(attempts))
}

func (m *Metrics) SetLatestID(id uint64) {
	m.latestID.Set(float64(id))
}
