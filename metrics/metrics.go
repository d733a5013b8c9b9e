// Package metrics is the optional prometheus registry §9 leaves as an
// implementer's choice ("whether to expose metrics at all is left to
// the implementer"). It provides a Monitor for packbuild.Write and
// counters for the object database and transport layer; no package of
// this module updates the latter two, grounded on odvcencio-gothub's httpMetrics (same
// Namespace/Subsystem/CounterVec/HistogramVec shape, registered
// through a Registerer the caller controls instead of a global).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gitcore"

// Registry is the set of collectors this module registers. Only
// PackObjectsTotal and PackBuildSeconds are updated, through
// PackMonitor; ObjectsWritten and TransportErrors are left to the
// caller. The zero value is not usable; use New.
type Registry struct {
	ObjectsWritten   *prometheus.CounterVec
	PackObjectsTotal prometheus.Counter
	PackBuildSeconds prometheus.Histogram
	TransportErrors  *prometheus.CounterVec
}

// New creates every collector and, if reg is non-nil, registers them.
// A nil reg is valid (the caller wants the counters but not exported
// via any HTTP endpoint yet).
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ObjectsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "objectdb",
			Name:      "objects_written_total",
			Help:      "Objects written to the object database, by storage kind.",
		}, []string{"kind"}), // "loose" or "packed"
		PackObjectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packbuild",
			Name:      "objects_total",
			Help:      "Total objects serialized across every pack build.",
		}),
		PackBuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "packbuild",
			Name:      "build_seconds",
			Help:      "Wall-clock time to write one pack.",
			Buckets:   prometheus.DefBuckets,
		}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Transport-layer failures, by scheme and stage.",
		}, []string{"scheme", "stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.ObjectsWritten, m.PackObjectsTotal, m.PackBuildSeconds, m.TransportErrors)
	}
	return m
}

// PackMonitor adapts a Registry into a packbuild.Monitor: it has no
// use for the per-call "done" count itself (that's cumulative across
// pack builds, not useful as a gauge), but bumps PackObjectsTotal once
// per object and stops a build timer when the total is reached.
type PackMonitor struct {
	reg      *Registry
	start    time.Time
	lastDone int
}

// NewPackMonitor returns a packbuild.Monitor that reports into reg.
func NewPackMonitor(reg *Registry) *PackMonitor {
	return &PackMonitor{reg: reg, start: time.Now()}
}

// OnObject implements packbuild.Monitor.
func (m *PackMonitor) OnObject(done, total int) {
	if done > m.lastDone {
		m.reg.PackObjectsTotal.Add(float64(done - m.lastDone))
		m.lastDone = done
	}
	if done == total {
		m.reg.PackBuildSeconds.Observe(time.Since(m.start).Seconds())
	}
}
