// Package metrics exports placement counters and solve timings to
// Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"placement/milp"
	"placement/solver"
)

const namespace = "placement"

// Collectors implements solver.Recorder and counts HTTP requests per
// variant. One instance is shared by every request of a server.
type Collectors struct {
	placements *prometheus.CounterVec
	solves     *prometheus.CounterVec
	duration   prometheus.Histogram
	requests   *prometheus.CounterVec
}

var _ solver.Recorder = (*Collectors)(nil)

func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_placements_total",
			Help:      "Groups committed to a house, by the phase that committed them.",
		}, []string{"phase"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_total",
			Help:      "Integer program solves, by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Wall-clock time of integer program solves.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Placement requests, by variant and HTTP status code.",
		}, []string{"variant", "code"}),
	}
	reg.MustRegister(c.placements, c.solves, c.duration, c.requests)
	return c
}

func (c *Collectors) Placed(phase solver.Phase, n int) {
	c.placements.WithLabelValues(phase.String()).Add(float64(n))
}

func (c *Collectors) Solved(status milp.Status, elapsed time.Duration) {
	c.solves.WithLabelValues(status.String()).Inc()
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collectors) Request(variant string, code int) {
	c.requests.WithLabelValues(variant, strconv.Itoa(code)).Inc()
}
