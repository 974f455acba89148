// Package metrics exposes queue and submission metrics to Prometheus.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every lazyApply metric.
type Collector struct {
	itemsEnqueued prometheus.Counter
	submissions   *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	retries       prometheus.Counter

	submissionSeconds *prometheus.HistogramVec

	queueLength    prometheus.Gauge
	frozenForAuth  prometheus.Gauge
	submissionsNow prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// selects prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		itemsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lazyapply_items_enqueued_total",
			Help: "Work items accepted into the queue",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyapply_submissions_total",
			Help: "Routine invocations by target and outcome",
		}, []string{"target", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyapply_rate_limited_total",
			Help: "Rate governor denials by target and reason",
		}, []string{"target", "reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lazyapply_retries_total",
			Help: "Failed items requeued for another attempt",
		}),
		submissionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lazyapply_submission_seconds",
			Help:    "Time from navigation to outcome",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"target"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lazyapply_queue_length",
			Help: "Items waiting in the queue",
		}),
		frozenForAuth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lazyapply_frozen_for_auth",
			Help: "1 while the queue waits for the operator to sign in",
		}),
		submissionsNow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lazyapply_submission_in_flight",
			Help: "1 while a routine is driving the page",
		}),
	}

	reg.MustRegister(
		c.itemsEnqueued,
		c.submissions,
		c.rateLimited,
		c.retries,
		c.submissionSeconds,
		c.queueLength,
		c.frozenForAuth,
		c.submissionsNow,
	)
	return c
}

// RecordEnqueue counts n accepted items.
func (c *Collector) RecordEnqueue(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.itemsEnqueued.Add(float64(n))
}

// RecordOutcome counts one routine outcome and its duration.
func (c *Collector) RecordOutcome(target, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(target, outcome).Inc()
	c.submissionSeconds.WithLabelValues(target).Observe(d.Seconds())
}

// RecordRateLimited counts one governor denial.
func (c *Collector) RecordRateLimited(target, reason string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(target, reason).Inc()
}

// RecordRetry counts one requeue after failure.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// SetQueueLength updates the queue gauge.
func (c *Collector) SetQueueLength(n int) {
	if c == nil {
		return
	}
	c.queueLength.Set(float64(n))
}

// SetFrozen updates the auth-freeze gauge.
func (c *Collector) SetFrozen(frozen bool) {
	if c == nil {
		return
	}
	c.frozenForAuth.Set(boolGauge(frozen))
}

// SetInFlight updates the in-flight gauge.
func (c *Collector) SetInFlight(busy bool) {
	if c == nil {
		return
	}
	c.submissionsNow.Set(boolGauge(busy))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Serve exposes g on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "metrics server on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
