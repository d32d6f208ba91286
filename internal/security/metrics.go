package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge

	// MessagesTotal counts persisted messages by type.
	MessagesTotal *prometheus.CounterVec

	// FanoutEventsTotal counts fanout deliveries by bridge and result.
	FanoutEventsTotal *prometheus.CounterVec

	// FanoutQueueDepth tracks events waiting on the dispatcher queue.
	FanoutQueueDepth prometheus.Gauge

	// MediaOperationsTotal counts media uploads and deletions by category and result.
	MediaOperationsTotal *prometheus.CounterVec
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before starting the HTTP server or any store/cache initialization
// that records metrics. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "agora_cache_hits_total",
		Help: "Total cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "agora_cache_misses_total",
		Help: "Total cache misses",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "agora_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "agora_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})

	MessagesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_messages_total",
		Help: "Total messages persisted",
	}, []string{"type"})

	FanoutEventsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_fanout_events_total",
		Help: "Total fanout deliveries",
	}, []string{"bridge", "result"})

	FanoutQueueDepth = f.NewGauge(prometheus.GaugeOpts{
		Name: "agora_fanout_queue_depth",
		Help: "Fanout events waiting for delivery",
	})

	MediaOperationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_media_operations_total",
		Help: "Total media uploads and deletions",
	}, []string{"operation", "category", "result"})
}

// CountMessage records a persisted message of type t.
func CountMessage(t string) {
	if MessagesTotal != nil {
		MessagesTotal.WithLabelValues(t).Inc()
	}
}

// CountFanout records one fanout delivery attempt.
func CountFanout(bridge string, err error) {
	if FanoutEventsTotal != nil {
		FanoutEventsTotal.WithLabelValues(bridge, result(err)).Inc()
	}
}

// CountFanoutDropped records an event the dispatcher could not queue.
func CountFanoutDropped(bridge string) {
	if FanoutEventsTotal != nil {
		FanoutEventsTotal.WithLabelValues(bridge, "dropped").Inc()
	}
}

// CountMedia records one media operation.
func CountMedia(operation, category string, err error) {
	if MediaOperationsTotal != nil {
		MediaOperationsTotal.WithLabelValues(operation, category, result(err)).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(duration.Seconds())
	}
}
