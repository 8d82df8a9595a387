// Package metrics exposes escrowd's operational counters through
// prometheus/client_golang, registered to a private registry so a daemon
// embeds its own metrics without a global default registry side effect.
// It replaces the teacher's hand-rolled atomic-counter Metrics type with
// the ecosystem's standard instrumentation library, dumped as text on
// SIGUSR1 in place of the teacher's goroutine-stack dump.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds every counter and histogram one daemon instance reports.
type Metrics struct {
	registry *prometheus.Registry

	Adds     prometheus.Counter
	Dels     prometheus.Counter
	Tags     prometheus.Counter
	Gets     prometheus.Counter
	Sessions prometheus.Counter

	Errors *prometheus.CounterVec

	PayloadBytes prometheus.Counter

	SessionDuration prometheus.Histogram
}

// New creates a Metrics instance and registers all of its collectors to a
// fresh, private prometheus.Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Adds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_add_total",
			Help: "Total number of successful ADD requests.",
		}),
		Dels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_del_total",
			Help: "Total number of successful DEL requests.",
		}),
		Tags: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_tag_total",
			Help: "Total number of successful TAG requests.",
		}),
		Gets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_get_total",
			Help: "Total number of successful GET requests.",
		}),
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_sessions_total",
			Help: "Total number of client sessions accepted.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrowd_errors_total",
			Help: "Total number of error replies, by opcode.",
		}, []string{"opcode"}),
		PayloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowd_payload_bytes_total",
			Help: "Total bytes of payload accepted via ADD.",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrowd_session_duration_seconds",
			Help:    "Duration of a client session from accept to disconnect.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Adds, m.Dels, m.Tags, m.Gets, m.Sessions, m.Errors, m.PayloadBytes, m.SessionDuration)
	return m
}

// WriteText renders every registered metric in Prometheus's text exposition
// format to w. The daemon calls this on SIGUSR1.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
