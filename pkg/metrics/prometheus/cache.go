// Package prometheus is the Prometheus-backed implementation of
// metrics.CacheMetrics, grounded on the teacher's
// pkg/metrics/prometheus/cache.go (promauto registration against an
// explicit registry, one struct field per gauge/counter/histogram).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/s3ql/main/pkg/metrics"
)

type cacheMetrics struct {
	uploadOps       prometheus.Counter
	uploadDuration  prometheus.Histogram
	uploadBytes     prometheus.Histogram
	downloadOps     prometheus.Counter
	downloadDuration prometheus.Histogram
	downloadBytes   prometheus.Histogram
	evictions       prometheus.Counter
	dedupHits       prometheus.Counter
	uploadFailures  prometheus.Counter
	inTransit       prometheus.Gauge
	removalQueue    prometheus.Gauge
	entries         prometheus.Gauge
	bytesTotal      prometheus.Gauge
	dirtyEntries    prometheus.Gauge
	dirtyBytes      prometheus.Gauge
}

var byteBuckets = []float64{
	4096, 32768, 131072, 524288, 1048576, 4194304, 16777216, 67108864,
}

var msBuckets = []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000}

// New registers the cache metric family against reg and returns the
// metrics.CacheMetrics implementation. Passing a nil *prometheus.Registry
// is a programming error; to disable metrics entirely, pass a nil
// metrics.CacheMetrics to pkg/cache.New instead of calling this.
func New(reg prometheus.Registerer) metrics.CacheMetrics {
	return &cacheMetrics{
		uploadOps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3ql_cache_upload_operations_total",
			Help: "Total number of completed block uploads.",
		}),
		uploadDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "s3ql_cache_upload_duration_milliseconds",
			Help:    "Duration of block uploads in milliseconds.",
			Buckets: msBuckets,
		}),
		uploadBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "s3ql_cache_upload_bytes",
			Help:    "Distribution of uploaded object sizes.",
			Buckets: byteBuckets,
		}),
		downloadOps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3ql_cache_download_operations_total",
			Help: "Total number of completed block downloads.",
		}),
		downloadDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "s3ql_cache_download_duration_milliseconds",
			Help:    "Duration of block downloads in milliseconds.",
			Buckets: msBuckets,
		}),
		downloadBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "s3ql_cache_download_bytes",
			Help:    "Distribution of downloaded object sizes.",
			Buckets: byteBuckets,
		}),
		evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3ql_cache_evictions_total",
			Help: "Total number of CacheMap entries evicted by expire.",
		}),
		dedupHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3ql_cache_dedup_hits_total",
			Help: "Total number of uploads short-circuited by a hash match.",
		}),
		uploadFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "s3ql_cache_upload_failures_total",
			Help: "Total number of uploads that tombstoned their object after exhausting retries.",
		}),
		inTransit: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3ql_cache_in_transit",
			Help: "Current number of cache entries owned by an upload worker.",
		}),
		removalQueue: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3ql_cache_removal_queue_depth",
			Help: "Current depth of the object removal queue.",
		}),
		entries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3ql_cache_entries",
			Help: "Current number of entries in the CacheMap.",
		}),
		bytesTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3ql_cache_bytes",
			Help: "Current total size of the CacheMap in bytes.",
		}),
		dirtyEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3ql_cache_dirty_entries",
			Help: "Current number of dirty entries in the CacheMap.",
		}),
		dirtyBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "s3ql_cache_dirty_bytes",
			Help: "Current total size of dirty entries in bytes.",
		}),
	}
}

func (m *cacheMetrics) ObserveUpload(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.uploadOps.Inc()
	m.uploadDuration.Observe(float64(duration.Milliseconds()))
	m.uploadBytes.Observe(float64(bytes))
}

func (m *cacheMetrics) ObserveDownload(bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.downloadOps.Inc()
	m.downloadDuration.Observe(float64(duration.Milliseconds()))
	m.downloadBytes.Observe(float64(bytes))
}

func (m *cacheMetrics) RecordEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *cacheMetrics) RecordDedupHit() {
	if m == nil {
		return
	}
	m.dedupHits.Inc()
}

func (m *cacheMetrics) RecordUploadFailure() {
	if m == nil {
		return
	}
	m.uploadFailures.Inc()
}

func (m *cacheMetrics) SetInTransit(count int) {
	if m == nil {
		return
	}
	m.inTransit.Set(float64(count))
}

func (m *cacheMetrics) SetRemovalQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.removalQueue.Set(float64(depth))
}

func (m *cacheMetrics) SetCacheUsage(entries int, bytesTotal int64, dirtyEntries int, dirtyBytes int64) {
	if m == nil {
		return
	}
	m.entries.Set(float64(entries))
	m.bytesTotal.Set(float64(bytesTotal))
	m.dirtyEntries.Set(float64(dirtyEntries))
	m.dirtyBytes.Set(float64(dirtyBytes))
}

var _ metrics.CacheMetrics = (*cacheMetrics)(nil)
