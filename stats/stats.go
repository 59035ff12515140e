// Package stats provides the single counters/gauges registry injected into
// every pipeline component, mirroring the teacher's stance that shared
// infrastructure (logger, stats, executor) is passed in rather than reached
// for as package-level global state.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Direction classifies whether a counted event happened on the way in or
// the way out of a component.
type Direction string

// Direction values used across the core pipeline.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Registry is the counters/gauges sink every component increments through.
// A single Registry is constructed once by the daemon entry point and
// injected into every other component's constructor.
type Registry struct {
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
}

// New creates a Registry and registers its vectors with reg. Passing a
// fresh prometheus.NewRegistry() keeps tests isolated from any global
// default registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "latticenode",
			Name:      "events_total",
			Help:      "Count of pipeline events by type, detail and direction.",
		}, []string{"type", "detail", "direction"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "latticenode",
			Name:      "levels",
			Help:      "Current size of bounded pipeline structures.",
		}, []string{"type", "detail"}),
	}
	reg.MustRegister(r.counters, r.gauges)
	return r
}

// Inc increments the counter identified by (typ, detail, direction).
func (r *Registry) Inc(typ, detail string, direction Direction) {
	r.counters.WithLabelValues(typ, detail, string(direction)).Inc()
}

// IncBy increments the counter identified by (typ, detail, direction) by n.
func (r *Registry) IncBy(typ, detail string, direction Direction, n float64) {
	r.counters.WithLabelValues(typ, detail, string(direction)).Add(n)
}

// SetLevel records the current size of a bounded structure identified by
// (typ, detail), e.g. a queue's current length.
func (r *Registry) SetLevel(typ, detail string, value float64) {
	r.gauges.WithLabelValues(typ, detail).Set(value)
}
