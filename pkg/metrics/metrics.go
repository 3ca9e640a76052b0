package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avif_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Conversion metrics
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_conversions_total",
			Help: "Total number of image conversions",
		},
		[]string{"status"}, // success, error, cancelled
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avif_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"}, // direct, smart, strict, passthrough
	)

	ConversionBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avif_conversion_bytes",
			Help:    "Conversion input/output bytes",
			Buckets: []float64{1024, 10240, 102400, 512000, 1048576, 5242880, 10485760},
		},
		[]string{"direction"}, // input, output
	)

	// Adaptive search metrics
	EncodeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_encode_attempts_total",
			Help: "Encode calls made by the adaptive search",
		},
		[]string{"strategy", "fits"},
	)

	SearchAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avif_search_attempts",
			Help:    "Encode calls per adaptive search, fallback included",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		},
		[]string{"strategy"},
	)

	SearchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_search_outcomes_total",
			Help: "Adaptive search results by outcome",
		},
		[]string{"strategy", "outcome"}, // fit, fallback_fit, fallback_over
	)

	// Queue/Pool metrics
	WorkerPoolQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avif_worker_pool_queue_size",
			Help: "Current number of jobs in worker pool queue",
		},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avif_worker_pool_active_jobs",
			Help: "Current number of active conversion jobs",
		},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_rate_limit_exceeded_total",
			Help: "Total number of requests rejected due to rate limiting",
		},
		[]string{"ip_prefix"}, // First octet for privacy
	)

	// Concurrency metrics
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avif_concurrent_requests",
			Help: "Current number of concurrent requests being processed",
		},
	)

	ConcurrencyLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avif_concurrency_limit_exceeded_total",
			Help: "Total number of requests rejected due to concurrency limit",
		},
	)

	// Cache and buffer metrics
	ResultCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_result_cache_total",
			Help: "Result cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	BufferPool = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avif_buffer_pool_total",
			Help: "Input buffer pool lookups",
		},
		[]string{"size", "result"}, // small/large, hit/miss
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, duration float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordConversion records a conversion operation
func RecordConversion(status, mode string, duration float64, inputBytes, outputBytes int) {
	ConversionsTotal.WithLabelValues(status).Inc()
	ConversionDuration.WithLabelValues(mode).Observe(duration)
	ConversionBytes.WithLabelValues("input").Observe(float64(inputBytes))
	ConversionBytes.WithLabelValues("output").Observe(float64(outputBytes))
}

// RecordEncodeAttempt records one encode call made by the search
func RecordEncodeAttempt(strategy string, fits bool) {
	label := "false"
	if fits {
		label = "true"
	}
	EncodeAttempts.WithLabelValues(strategy, label).Inc()
}

// RecordSearch records the outcome of one adaptive search
func RecordSearch(strategy, outcome string, attempts int) {
	SearchAttempts.WithLabelValues(strategy).Observe(float64(attempts))
	SearchOutcomes.WithLabelValues(strategy, outcome).Inc()
}

// UpdateWorkerPoolMetrics updates worker pool metrics
func UpdateWorkerPoolMetrics(queueSize, activeJobs int) {
	WorkerPoolQueueSize.Set(float64(queueSize))
	WorkerPoolActiveJobs.Set(float64(activeJobs))
}

// RecordRateLimitExceeded records a rate limit rejection
func RecordRateLimitExceeded(ipPrefix string) {
	RateLimitExceeded.WithLabelValues(ipPrefix).Inc()
}

// UpdateConcurrency updates concurrent request gauge
func UpdateConcurrency(count int) {
	ConcurrentRequests.Set(float64(count))
}

// RecordConcurrencyLimitExceeded records a concurrency limit rejection
func RecordConcurrencyLimitExceeded() {
	ConcurrencyLimitExceeded.Inc()
}

// RecordCacheLookup records a result cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		ResultCache.WithLabelValues("hit").Inc()
		return
	}
	ResultCache.WithLabelValues("miss").Inc()
}

// RecordBufferPool records an input buffer pool hit or miss
func RecordBufferPool(size string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	BufferPool.WithLabelValues(size, result).Inc()
}
