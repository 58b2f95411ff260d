// Package metrics exposes Prometheus collectors for conflict checks, lock
// contention and HTTP traffic.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records service metrics on a Prometheus registerer.
type Recorder struct {
	checks       *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec
	lockBusy     prometheus.Counter
	requests     *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New registers the collectors on reg. If reg is nil a fresh registry is
// used. Collectors that are already registered are reused.
func New(reg *prometheus.Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_conflict_checks_total",
		Help: "Conflict checks by record type and outcome",
	}, []string{"record", "result"})
	checkLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_conflict_check_duration_seconds",
		Help:    "Time spent querying for overlapping records",
		Buckets: prometheus.DefBuckets,
	}, []string{"record"})
	lockBusy := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_booking_lock_busy_total",
		Help: "Requests rejected because a resource lock was held",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_http_requests_total",
		Help: "HTTP requests by method and status code",
	}, []string{"method", "code"})

	var err error
	if checks, err = register(reg, checks); err != nil {
		return nil, err
	}
	if checkLatency, err = register(reg, checkLatency); err != nil {
		return nil, err
	}
	if lockBusy, err = register(reg, lockBusy); err != nil {
		return nil, err
	}
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	return &Recorder{
		checks:       checks,
		checkLatency: checkLatency,
		lockBusy:     lockBusy,
		requests:     requests,
		gatherer:     reg,
	}, nil
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

// ObserveCheck records one conflict query.
func (r *Recorder) ObserveCheck(record string, conflicted bool, elapsed time.Duration) {
	result := "clear"
	if conflicted {
		result = "conflict"
	}
	r.checks.WithLabelValues(record, result).Inc()
	r.checkLatency.WithLabelValues(record).Observe(elapsed.Seconds())
}

// LockBusy records a request rejected by the booking lock.
func (r *Recorder) LockBusy() {
	r.lockBusy.Inc()
}

// ObserveRequest records a served HTTP request.
func (r *Recorder) ObserveRequest(method string, status int) {
	r.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
