// Package metrics tracks Prometheus metrics for the Connection Manager:
// attach state, active context count, and current bearer. Nil-receiver
// methods make a nil *Metrics a safe no-op, so the daemon can run with
// metrics collection disabled at zero overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Attached       prometheus.Gauge
	ActiveContexts prometheus.Gauge
	Bearer         *prometheus.GaugeVec
	AttachTotal    *prometheus.CounterVec
	ActivationFail *prometheus.CounterVec
}

var (
	once     sync.Once
	instance *Metrics
)

// New creates and registers connmand's Prometheus metrics. If
// registerer is nil, prometheus.DefaultRegisterer is used. Idempotent:
// repeated calls return the same registered instance.
func New(registerer prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &Metrics{
			Attached: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "connmand_attached",
				Help: "1 if the modem is currently attached to the packet domain, else 0",
			}),
			ActiveContexts: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "connmand_active_contexts",
				Help: "Current number of active Primary Contexts",
			}),
			Bearer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "connmand_bearer",
				Help: "1 for the currently reported bearer technology, else 0",
			}, []string{"bearer"}),
			AttachTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "connmand_attach_transitions_total",
				Help: "Total attach/detach transitions by direction",
			}, []string{"direction"}),
			ActivationFail: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "connmand_context_activation_failures_total",
				Help: "Total context activation failures by context type",
			}, []string{"type"}),
		}
		registerer.MustRegister(m.Attached, m.ActiveContexts, m.Bearer, m.AttachTotal, m.ActivationFail)
		instance = m
	})
	return instance
}

func (m *Metrics) SetAttached(attached bool) {
	if m == nil {
		return
	}
	if attached {
		m.Attached.Set(1)
		m.AttachTotal.WithLabelValues("attach").Inc()
	} else {
		m.Attached.Set(0)
		m.AttachTotal.WithLabelValues("detach").Inc()
	}
}

func (m *Metrics) SetActiveContexts(n int) {
	if m == nil {
		return
	}
	m.ActiveContexts.Set(float64(n))
}

func (m *Metrics) SetBearer(name string) {
	if m == nil {
		return
	}
	m.Bearer.Reset()
	m.Bearer.WithLabelValues(name).Set(1)
}

func (m *Metrics) RecordActivationFailure(contextType string) {
	if m == nil {
		return
	}
	m.ActivationFail.WithLabelValues(contextType).Inc()
}
