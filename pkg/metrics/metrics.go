// Package metrics exposes counters for the expiry scheduler and the persistence path.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics groups the collectors of one engine. Each engine owns its own
// registry so several engines (tests, CLI runs) never collide.
type Metrics struct {
	Registry *prometheus.Registry

	ExpiryScheduled prometheus.Counter
	ExpiryCancelled prometheus.Counter
	ExpiryFired     prometheus.Counter
	ExpirySkipped   prometheus.Counter // Fires that lost a race with a cancellation
	ExpiryPending   prometheus.Gauge

	MessagesAppended prometheus.Counter
	MessagesDeleted  *prometheus.CounterVec // label "reason": manual, expired, cascade

	PersistWrites   prometheus.Counter
	PersistFailures prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ExpiryScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "expiry", Name: "scheduled_total",
			Help: "Ephemeral message timers started.",
		}),
		ExpiryCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "expiry", Name: "cancelled_total",
			Help: "Pending timers cleared before firing.",
		}),
		ExpiryFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "expiry", Name: "fired_total",
			Help: "Timers that triggered a deletion.",
		}),
		ExpirySkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "expiry", Name: "skipped_total",
			Help: "Timer fires ignored because the entry was cancelled or replaced.",
		}),
		ExpiryPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatter", Subsystem: "expiry", Name: "pending",
			Help: "Timers currently waiting to fire.",
		}),
		MessagesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "messages", Name: "appended_total",
			Help: "Messages appended to conversations.",
		}),
		MessagesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "messages", Name: "deleted_total",
			Help: "Messages removed from conversations.",
		}, []string{"reason"}),
		PersistWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "persist", Name: "writes_total",
			Help: "Successful write-through saves.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatter", Subsystem: "persist", Name: "failures_total",
			Help: "Failed write-through saves.",
		}),
	}

	m.Registry.MustRegister(
		m.ExpiryScheduled, m.ExpiryCancelled, m.ExpiryFired, m.ExpirySkipped, m.ExpiryPending,
		m.MessagesAppended, m.MessagesDeleted,
		m.PersistWrites, m.PersistFailures,
	)
	return m
}

// WriteText dumps every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
