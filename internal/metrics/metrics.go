package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Kafka
	kafkaMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_sent_total",
			Help: "Total number of Kafka messages successfully sent.",
		},
	)
	kafkaMessagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Total number of Kafka messages successfully processed.",
		},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (high watermark - current offset - 1).",
		},
		[]string{"topic", "partition"},
	)

	// Business
	postsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_published_total",
			Help: "Total number of posts published, by kind (single/thread/reply_link).",
		},
		[]string{"kind"},
	)
	postsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_failed_total",
			Help: "Total number of post publish failures, by reason.",
		},
		[]string{"reason"},
	)
	publishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "post_publish_duration_seconds",
			Help:    "Time spent publishing one post (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	threadLength = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thread_group_length",
			Help:    "Number of rows published per thread group run.",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 25},
		},
	)
	runsSkippedLockBusy = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_runs_skipped_lock_busy_total",
			Help: "Publish runs skipped because another run held the lock.",
		},
	)
	mediaUploadsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "media_uploads_dropped_total",
			Help: "Media uploads that failed and were dropped from their post.",
		},
	)
	postStatusCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "posts_status_count",
			Help: "Current count of post rows by status.",
		},
		[]string{"status"},
	)
	engagementRefreshed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_refreshed_total",
			Help: "Total number of posts whose engagement metrics were refreshed.",
		},
	)
	engagementErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engagement_refresh_errors_total",
			Help: "Total number of engagement refresh failures.",
		},
	)

	// Event outbox
	eventsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "post_events_count",
			Help: "Current count of outbox events by status.",
		},
		[]string{"status"},
	)
	eventsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "post_events_sent_total",
			Help: "Total number of outbox events marked as sent.",
		},
	)
	eventsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "post_events_failed_total",
			Help: "Total number of outbox events marked as failed.",
		},
	)
	eventProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "post_event_processing_duration_seconds",
			Help:    "Time spent sending a single outbox event (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	eventRetryCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "post_event_retries_total",
			Help: "Total number of outbox event send retries (failed attempts).",
		},
	)
	eventLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "post_event_lag_seconds",
			Help:    "Lag between outbox event creation and send attempt (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	eventPendingCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "post_events_pending_count",
			Help: "Current number of pending outbox events.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			kafkaMessagesSent,
			kafkaMessagesProcessed,
			kafkaErrors,
			kafkaConsumerLag,

			postsPublished,
			postsFailed,
			publishDuration,
			threadLength,
			runsSkippedLockBusy,
			mediaUploadsDropped,
			postStatusCount,
			engagementRefreshed,
			engagementErrors,

			eventsTotal,
			eventsSentTotal,
			eventsFailedTotal,
			eventProcessingDuration,
			eventRetryCount,
			eventLagSeconds,
			eventPendingCount,
		)
		registerRedisMetrics()
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Kafka ---
func IncKafkaSent()      { kafkaMessagesSent.Inc() }
func IncKafkaProcessed() { kafkaMessagesProcessed.Inc() }
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}
func SetKafkaConsumerLag(topic string, partition int32, lag int64) {
	if lag < 0 {
		lag = 0
	}
	kafkaConsumerLag.WithLabelValues(topic, itoa32(partition)).Set(float64(lag))
}

// --- Business ---
func IncPostPublished(kind string)            { postsPublished.WithLabelValues(kind).Inc() }
func IncPostFailed(reason string)             { postsFailed.WithLabelValues(reason).Inc() }
func ObservePublishDuration(d time.Duration)  { publishDuration.Observe(d.Seconds()) }
func ObserveThreadLength(n int)               { threadLength.Observe(float64(max0(n))) }
func IncRunSkippedLockBusy()                  { runsSkippedLockBusy.Inc() }
func IncMediaUploadDropped()                  { mediaUploadsDropped.Inc() }
func IncEngagementRefreshed()                 { engagementRefreshed.Inc() }
func IncEngagementError()                     { engagementErrors.Inc() }

// --- Event outbox ---
func IncEventSent()                          { eventsSentTotal.Inc() }
func IncEventFailed()                        { eventsFailedTotal.Inc() }
func ObserveEventProcessing(d time.Duration) { eventProcessingDuration.Observe(d.Seconds()) }
func IncEventRetry()                         { eventRetryCount.Inc() }
func ObserveEventLagSeconds(sec float64) {
	if sec < 0 {
		sec = 0
	}
	eventLagSeconds.Observe(sec)
}

// --- Gauges (DB collectors) ---
func SetPostStatusCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	postStatusCount.WithLabelValues(status).Set(float64(count))
}
func SetEventStatusCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	eventsTotal.WithLabelValues(status).Set(float64(count))
}
func SetEventPendingCount(count int64) {
	if count < 0 {
		count = 0
	}
	eventPendingCount.Set(float64(count))
}

// helpers
func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func itoa32(v int32) string { return fmtInt(int64(v)) }

func fmtInt(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [32]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
