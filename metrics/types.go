package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a labelled, monotonically increasing metric.
type Counter interface {
	// WithLabelValues returns the child counter for the given label values.
	WithLabelValues(lvs ...string) Counter
	Inc()
	Add(val float64)
}

// Gauge is a labelled metric that can go up and down.
type Gauge interface {
	// WithLabelValues returns the child gauge for the given label values.
	WithLabelValues(lvs ...string) Gauge
	Set(val float64)
	Inc()
	Dec()
	Add(val float64)
	Sub(val float64)
}

// Histogram is a labelled distribution of observations.
type Histogram interface {
	// WithLabelValues returns the child observer for the given label values.
	WithLabelValues(lvs ...string) Observer
	Observe(val float64)
}

// Observer records a single observation.
type Observer interface {
	Observe(val float64)
}

// counterVec serves both the unlabelled vector and, once labels are bound, a child.
// Binding labels twice is a programming error and panics inside Prometheus.
type counterVec struct {
	vec   *prometheus.CounterVec
	bound prometheus.Counter
}

func (c *counterVec) WithLabelValues(lvs ...string) Counter {
	return &counterVec{vec: c.vec, bound: c.vec.WithLabelValues(lvs...)}
}

func (c *counterVec) metric() prometheus.Counter {
	if c.bound != nil {
		return c.bound
	}
	return c.vec.WithLabelValues()
}

func (c *counterVec) Inc()            { c.metric().Inc() }
func (c *counterVec) Add(val float64) { c.metric().Add(val) }

type gaugeVec struct {
	vec   *prometheus.GaugeVec
	bound prometheus.Gauge
}

func (g *gaugeVec) WithLabelValues(lvs ...string) Gauge {
	return &gaugeVec{vec: g.vec, bound: g.vec.WithLabelValues(lvs...)}
}

func (g *gaugeVec) metric() prometheus.Gauge {
	if g.bound != nil {
		return g.bound
	}
	return g.vec.WithLabelValues()
}

func (g *gaugeVec) Set(val float64) { g.metric().Set(val) }
func (g *gaugeVec) Inc()            { g.metric().Inc() }
func (g *gaugeVec) Dec()            { g.metric().Dec() }
func (g *gaugeVec) Add(val float64) { g.metric().Add(val) }
func (g *gaugeVec) Sub(val float64) { g.metric().Sub(val) }

type histogramVec struct {
	vec *prometheus.HistogramVec
}

func (h *histogramVec) WithLabelValues(lvs ...string) Observer {
	return h.vec.WithLabelValues(lvs...)
}

func (h *histogramVec) Observe(val float64) {
	h.vec.WithLabelValues().Observe(val)
}
