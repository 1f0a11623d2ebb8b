// Package metrics exports artwork resolution events to Prometheus.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

const defaultNamespace = "coverart"

// Recorder implements artwork.Recorder with Prometheus counters.
type Recorder struct {
	cacheHits  *prometheus.CounterVec
	sourceHits *prometheus.CounterVec
	misses     prometheus.Counter
	failures   *prometheus.CounterVec
}

var _ artwork.Recorder = (*Recorder)(nil)

// NewRecorder creates the counters and registers them with reg, reusing
// collectors that are already registered. A nil reg uses the default registerer.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Covers served from a cache tier.",
		}, []string{"tier"}),
		sourceHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_hits_total",
			Help:      "Covers found by an artwork source.",
		}, []string{"source"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Resolutions that found no cover.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Resolution failures by kind.",
		}, []string{"kind"}),
	}

	var err error
	if r.cacheHits, err = register(reg, r.cacheHits); err != nil {
		return nil, err
	}
	if r.sourceHits, err = register(reg, r.sourceHits); err != nil {
		return nil, err
	}
	if r.misses, err = register(reg, r.misses); err != nil {
		return nil, err
	}
	if r.failures, err = register(reg, r.failures); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("register metrics collector: %w", err)
}

// CacheHit implements artwork.Recorder.
func (r *Recorder) CacheHit(tier string) { r.cacheHits.WithLabelValues(tier).Inc() }

// SourceHit implements artwork.Recorder.
func (r *Recorder) SourceHit(source string) { r.sourceHits.WithLabelValues(source).Inc() }

// Miss implements artwork.Recorder.
func (r *Recorder) Miss() { r.misses.Inc() }

// Failure implements artwork.Recorder.
func (r *Recorder) Failure(kind string) { r.failures.WithLabelValues(kind).Inc() }
