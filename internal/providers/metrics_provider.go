package providers

import (
	"kwatch/internal/structures"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	IncChecksTotal(outcome string)
	IncFetchRetries()
	ObserveFetchDuration(duration time.Duration)
	ObserveCycleDuration(duration time.Duration)
	SetMonitorsDue(count int)
	IncNotificationsTotal(channel string, status string)
	IncNotificationsSuppressed(channel string)
	IncAllocationsTotal()
	IncAllocationMismatches()
}

type MetricsProvider struct {
	requestsTotal           *prometheus.CounterVec
	requestDuration         *prometheus.HistogramVec
	cacheHits               prometheus.Counter
	cacheMisses             prometheus.Counter
	checksTotal             *prometheus.CounterVec
	fetchRetries            prometheus.Counter
	fetchDuration           prometheus.Histogram
	cycleDuration           prometheus.Histogram
	monitorsDue             prometheus.Gauge
	notificationsTotal      *prometheus.CounterVec
	notificationsSuppressed *prometheus.CounterVec
	allocationsTotal        prometheus.Counter
	allocationMismatches    prometheus.Counter
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits()   { m.cacheHits.Inc() }
func (m *MetricsProvider) IncCacheMisses() { m.cacheMisses.Inc() }

func (m *MetricsProvider) IncChecksTotal(outcome string) {
	m.checksTotal.WithLabelValues(outcome).Inc()
}

func (m *MetricsProvider) IncFetchRetries() { m.fetchRetries.Inc() }

func (m *MetricsProvider) ObserveFetchDuration(duration time.Duration) {
	m.fetchDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) ObserveCycleDuration(duration time.Duration) {
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) SetMonitorsDue(count int) {
	m.monitorsDue.Set(float64(count))
}

func (m *MetricsProvider) IncNotificationsTotal(channel string, status string) {
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *MetricsProvider) IncNotificationsSuppressed(channel string) {
	m.notificationsSuppressed.WithLabelValues(channel).Inc()
}

func (m *MetricsProvider) IncAllocationsTotal()     { m.allocationsTotal.Inc() }
func (m *MetricsProvider) IncAllocationMismatches() { m.allocationMismatches.Inc() }

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	m := &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kwatch_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kwatch_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kwatch_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kwatch_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		checksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kwatch_checks_total",
			Help: "Total number of monitor checks by outcome",
		}, []string{"outcome"}),

		fetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kwatch_fetch_retries_total",
			Help: "Total number of fetch retry attempts",
		}),

		fetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kwatch_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		cycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kwatch_cycle_duration_seconds",
			Help:    "Duration of full scheduling cycles in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}),

		monitorsDue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kwatch_monitors_due",
			Help: "Number of monitors due at the start of the last cycle",
		}),

		notificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kwatch_notifications_total",
			Help: "Total number of notifications by channel and delivery status",
		}, []string{"channel", "status"}),

		notificationsSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kwatch_notifications_suppressed_total",
			Help: "Notifications suppressed by the cooldown window",
		}, []string{"channel"}),

		allocationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kwatch_allocations_total",
			Help: "Total number of payments allocated into funds",
		}),

		allocationMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kwatch_allocation_mismatches_total",
			Help: "Allocation invariant violations detected (should stay zero)",
		}),
	}

	return m
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) IncChecksTotal(_ string)                          {}
func (n *noopMetrics) IncFetchRetries()                                 {}
func (n *noopMetrics) ObserveFetchDuration(_ time.Duration)             {}
func (n *noopMetrics) ObserveCycleDuration(_ time.Duration)             {}
func (n *noopMetrics) SetMonitorsDue(_ int)                             {}
func (n *noopMetrics) IncNotificationsTotal(_ string, _ string)         {}
func (n *noopMetrics) IncNotificationsSuppressed(_ string)              {}
func (n *noopMetrics) IncAllocationsTotal()                             {}
func (n *noopMetrics) IncAllocationMismatches()                         {}
