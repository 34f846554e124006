package index

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pyresolve"

// Request kinds recorded by Metrics.
const (
	KindProject  = "project"
	KindMetadata = "metadata"
	KindArtifact = "artifact"
)

// Metrics records index client activity as Prometheus collectors. A nil
// *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	cacheHits *prometheus.CounterVec
}

// NewMetrics creates the index collectors and registers them with reg.
// Collectors already registered by an earlier call are reused, so one
// registry can back several sessions.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "requests_total",
			Help:      "Index requests by index, kind and outcome.",
		}, []string{"index", "kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "request_duration_seconds",
			Help:      "Index request latency by index and kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"index", "kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "index",
			Name:      "cache_hits_total",
			Help:      "Project pages served from the cache.",
		}, []string{"index"}),
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.cacheHits, err = register(reg, m.cacheHits); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(index, kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(index, kind, Outcome(err)).Inc()
	m.duration.WithLabelValues(index, kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) cacheHit(index string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(index).Inc()
}

// Outcome names the failure class of err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRestricted):
		return "restricted"
	case errors.Is(err, ErrDigestMismatch):
		return "digest_mismatch"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
