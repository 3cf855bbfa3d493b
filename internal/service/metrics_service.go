package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the gateway and
// the sync engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	recordsImported prometheus.Counter
	syncRuns        *prometheus.CounterVec
	reversePushes   *prometheus.CounterVec
	directoryCache  *prometheus.CounterVec
	rosterScanSize  prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	recordsImported := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_records_imported_total",
		Help: "Attendance records created by the sync engine",
	})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sync_runs_total",
		Help: "Sync engine runs by outcome",
	}, []string{"outcome"})

	reversePushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_reverse_pushes_total",
		Help: "Review decisions pushed to Populi by outcome",
	}, []string{"kind", "outcome"})

	directoryCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "student_directory_cache_total",
		Help: "Student directory cache lookups by result",
	}, []string{"result"})

	rosterScanSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reverse_sync_roster_scan_size",
		Help:    "Students scanned per enrollment resolution",
		Buckets: []float64{10, 25, 50, 100, 250, 500},
	})

	registry.MustRegister(requestDuration, requestTotal, recordsImported,
		syncRuns, reversePushes, directoryCache, rosterScanSize)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		recordsImported: recordsImported,
		syncRuns:        syncRuns,
		reversePushes:   reversePushes,
		directoryCache:  directoryCache,
		rosterScanSize:  rosterScanSize,
	}
}

// Handler returns the scrape endpoint handler.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return promhttp.Handler()
	}
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordsImported counts newly created attendance records.
func (s *MetricsService) RecordsImported(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.recordsImported.Add(float64(n))
}

// SyncRun counts one engine run by outcome (success, failed, skipped).
func (s *MetricsService) SyncRun(outcome string) {
	if s == nil {
		return
	}
	s.syncRuns.WithLabelValues(outcome).Inc()
}

// ReversePush counts one status push attempt.
func (s *MetricsService) ReversePush(kind string, ok bool) {
	if s == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	s.reversePushes.WithLabelValues(kind, outcome).Inc()
}

// DirectoryCacheLookup counts a cache hit or miss.
func (s *MetricsService) DirectoryCacheLookup(hit bool) {
	if s == nil {
		return
	}
	result := "hit"
	if !hit {
		result = "miss"
	}
	s.directoryCache.WithLabelValues(result).Inc()
}

// RosterScanned observes how many roster rows one enrollment resolution
// walked before finding a match.
func (s *MetricsService) RosterScanned(n int) {
	if s == nil {
		return
	}
	s.rosterScanSize.Observe(float64(n))
}
