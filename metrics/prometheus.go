package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom exposes the node metrics via a prometheus registry.
type Prom struct {
	reg *prometheus.Registry

	Calls         prometheus.Counter
	CallErrors    prometheus.Counter
	CallLatency   prometheus.Summary
	Inflight      prometheus.Gauge
	Requests      prometheus.Counter
	RequestErrors prometheus.Counter
	Broadcasts    prometheus.Counter
}

// NewProm creates a Prom provider with its own registry.
func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg:           reg,
		Calls:         prometheus.NewCounter(prometheus.CounterOpts{Name: CallsTotal, Help: "Total outgoing calls"}),
		CallErrors:    prometheus.NewCounter(prometheus.CounterOpts{Name: CallErrorsTotal, Help: "Total outgoing calls that failed"}),
		CallLatency:   prometheus.NewSummary(prometheus.SummaryOpts{Name: CallDurationMs, Help: "Latency of outgoing calls in ms"}),
		Inflight:      prometheus.NewGauge(prometheus.GaugeOpts{Name: CallsInflight, Help: "Outgoing calls currently awaiting a reply"}),
		Requests:      prometheus.NewCounter(prometheus.CounterOpts{Name: RequestsTotal, Help: "Total incoming requests handled"}),
		RequestErrors: prometheus.NewCounter(prometheus.CounterOpts{Name: RequestErrorsTotal, Help: "Total incoming requests answered with an error"}),
		Broadcasts:    prometheus.NewCounter(prometheus.CounterOpts{Name: BroadcastsTotal, Help: "Total broadcasts published"}),
	}
	reg.MustRegister(p.Calls, p.CallErrors, p.CallLatency, p.Inflight, p.Requests, p.RequestErrors, p.Broadcasts)
	return p
}

// Handler returns an http handler serving the registry in prometheus format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// SetGauge implements the Provider interface.
func (p *Prom) SetGauge(name string, value float64) {
	switch name {
	case CallsInflight:
		p.Inflight.Set(value)
	}
}

// IncCounter implements the Provider interface.
func (p *Prom) IncCounter(name string, delta float64) {
	switch name {
	case CallsTotal:
		p.Calls.Add(delta)
	case CallErrorsTotal:
		p.CallErrors.Add(delta)
	case RequestsTotal:
		p.Requests.Add(delta)
	case RequestErrorsTotal:
		p.RequestErrors.Add(delta)
	case BroadcastsTotal:
		p.Broadcasts.Add(delta)
	}
}

// Observe implements the Provider interface.
func (p *Prom) Observe(name string, value float64) {
	switch name {
	case CallDurationMs:
		p.CallLatency.Observe(value)
	}
}
