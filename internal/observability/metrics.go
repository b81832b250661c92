package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	fetchTotal            *prometheus.CounterVec
	fetchLatencySeconds   *prometheus.HistogramVec
	feedCacheTotal        *prometheus.CounterVec
	normalizationGaps     *prometheus.CounterVec
	activeSubscriptions   *prometheus.GaugeVec
	snapshotsDelivered    *prometheus.CounterVec
	subscriptionErrors    *prometheus.CounterVec
	votesTotal            *prometheus.CounterVec
	notificationsDispatch *prometheus.CounterVec
	chatMessagesSent      prometheus.Counter
	mediaUploads          *prometheus.CounterVec
	mediaUploadLatency    prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthwatch_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_fetch_total",
			Help: "Working set fetches by collection and outcome.",
		}, []string{"collection", "outcome"})

		fetchLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthwatch_fetch_latency_seconds",
			Help:    "Latency of working set fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"})

		feedCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_feed_cache_total",
			Help: "Feed cache lookups by result.",
		}, []string{"collection", "result"})

		normalizationGaps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_normalization_fallbacks_total",
			Help: "Fields resolved through a legacy or default source during normalization.",
		}, []string{"field", "source"})

		activeSubscriptions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthwatch_active_subscriptions",
			Help: "Standing live subscriptions by kind.",
		}, []string{"kind"})

		snapshotsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_snapshots_delivered_total",
			Help: "Snapshots delivered to live subscribers by kind.",
		}, []string{"kind"})

		subscriptionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_subscription_errors_total",
			Help: "Errors reported by standing subscriptions by kind.",
		}, []string{"kind"})

		votesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_votes_total",
			Help: "Vote mutations by collection and action.",
		}, []string{"collection", "action"})

		notificationsDispatch = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_notifications_dispatched_total",
			Help: "Notifications written by the dispatcher by outcome.",
		}, []string{"outcome"})

		chatMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthwatch_chat_messages_sent_total",
			Help: "Chat messages accepted.",
		})

		mediaUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthwatch_media_uploads_total",
			Help: "Content image uploads by outcome.",
		}, []string{"outcome"})

		mediaUploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthwatch_media_upload_latency_seconds",
			Help:    "Latency of content image uploads.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			fetchTotal, fetchLatencySeconds, feedCacheTotal, normalizationGaps,
			activeSubscriptions, snapshotsDelivered, subscriptionErrors,
			votesTotal, notificationsDispatch, chatMessagesSent,
			mediaUploads, mediaUploadLatency,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func FetchTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return fetchTotal
}

func FetchLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return fetchLatencySeconds
}

func FeedCache() *prometheus.CounterVec {
	RegisterMetrics()
	return feedCacheTotal
}

// NormalizationFallbacks counts resolutions that did not come from the
// current-shape field.
func NormalizationFallbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return normalizationGaps
}

func ActiveSubscriptions() *prometheus.GaugeVec {
	RegisterMetrics()
	return activeSubscriptions
}

func SnapshotsDelivered() *prometheus.CounterVec {
	RegisterMetrics()
	return snapshotsDelivered
}

func SubscriptionErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return subscriptionErrors
}

func Votes() *prometheus.CounterVec {
	RegisterMetrics()
	return votesTotal
}

func NotificationsDispatched() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsDispatch
}

func ChatMessagesSent() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesSent
}

// MediaUploads counts image uploads; rejected outcomes name the check that failed.
func MediaUploads() *prometheus.CounterVec {
	RegisterMetrics()
	return mediaUploads
}

func MediaUploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return mediaUploadLatency
}
