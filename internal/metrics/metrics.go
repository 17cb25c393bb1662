package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recapbot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Summarization pipeline metrics
	SummarizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_summarizations_total",
			Help: "Total number of summarization runs",
		},
		[]string{"context", "status"},
	)

	SummarizationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recapbot_summarization_duration_seconds",
			Help:    "Duration of end-to-end summarization runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"context"},
	)

	MessagesCollected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recapbot_messages_collected",
			Help:    "Number of root messages collected per run",
			Buckets: []float64{0, 10, 25, 50, 100, 200, 300},
		},
	)

	RecordsTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recapbot_records_trimmed_total",
			Help: "Total number of records removed by budget fitting",
		},
	)

	SingleBotChannelsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_single_bot_channels_detected_total",
			Help: "Total number of runs short-circuited by single-bot detection",
		},
		[]string{"integration"},
	)

	// Backend metrics
	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_backend_calls_total",
			Help: "Total number of summarization backend calls",
		},
		[]string{"status"},
	)

	BackendCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recapbot_backend_call_duration_seconds",
			Help:    "Duration of summarization backend calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BackendRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recapbot_backend_retries_total",
			Help: "Total number of shrink-and-retry iterations",
		},
	)

	// Quota metrics
	QuotaDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_quota_decisions_total",
			Help: "Total number of quota gate decisions",
		},
		[]string{"feature", "decision"},
	)

	QuotaRefunds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recapbot_quota_refunds_total",
			Help: "Total number of quota refunds after failed runs",
		},
	)

	// Cache metrics
	SummaryCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_summary_cache_ops_total",
			Help: "Total number of summary cache operations",
		},
		[]string{"op", "status"},
	)

	// Session store metrics
	SessionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_sessions_recorded_total",
			Help: "Total number of summarization sessions recorded",
		},
		[]string{"status"},
	)

	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_feedback_recorded_total",
			Help: "Total number of feedback rows recorded",
		},
		[]string{"status"},
	)

	// Slack API metrics
	SlackAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_slack_api_calls_total",
			Help: "Total number of Slack API calls",
		},
		[]string{"method", "status"},
	)

	// Mail service metrics
	MailServiceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recapbot_mail_service_calls_total",
			Help: "Total number of outbound mail service calls",
		},
		[]string{"status"},
	)
)
