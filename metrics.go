package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter or histogram in a [MetricsSnapshot].
type MetricID uint16

const (
	// MetricSessionIssued counts sessions admitted by IssueSession and CompleteAdminLogin.
	MetricSessionIssued MetricID = iota
	// MetricSessionIssueFailure counts issuance attempts that did not persist a session.
	MetricSessionIssueFailure
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes rejected for any reason, rate limits included.
	MetricRefreshFailure
	MetricRefreshRateLimited
	// MetricSessionInvalidated counts sessions removed because their refresh token stopped verifying.
	MetricSessionInvalidated
	// MetricLogout counts Logout calls that reached Redis, idempotent repeats included.
	MetricLogout
	MetricLogoutAll
	// MetricTokenRevoked counts access-token jtis written to the blacklist.
	MetricTokenRevoked
	MetricAuthenticateSuccess
	// MetricAuthenticateFailure counts rejected bearer tokens, including revoked ones.
	MetricAuthenticateFailure
	// MetricAuthenticateStoreFailure counts rejections caused by an unreachable blacklist.
	MetricAuthenticateStoreFailure
	// MetricOTPIssued counts codes issued, and delivered when the engine owns delivery.
	MetricOTPIssued
	MetricOTPDeliveryFailure
	MetricOTPConsumed
	// MetricOTPExpired counts consumes that found no live challenge.
	MetricOTPExpired
	MetricOTPInvalid
	MetricOTPRateLimited
	MetricAdminLoginSuccess
	MetricPasswordChangeSuccess
	MetricPasswordResetSuccess
	// MetricStoreFailure counts operations that failed because Redis was unavailable.
	MetricStoreFailure
	// MetricAuthenticateLatency is the only histogram-backed metric.
	MetricAuthenticateLatency
	metricIDCount
)

// MetricIDCount is the number of defined metric ids, useful for exporters.
const MetricIDCount = int(metricIDCount)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBucketBounds are the inclusive upper bounds of the first seven
// latency buckets; the eighth bucket is unbounded.
var HistogramBucketBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by authcore APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by authcore APIs.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a counter set; a disabled config yields a set that
// ignores every write.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the authenticate histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram for id. Only
// [MetricAuthenticateLatency] carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricAuthenticateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBucketBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
