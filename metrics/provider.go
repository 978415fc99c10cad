// Package metrics collects counters and timings for node operations.
package metrics

// Names of the metrics emitted by the node.
const (
	CallsTotal         = "ipc_calls_total"
	CallErrorsTotal    = "ipc_call_errors_total"
	CallDurationMs     = "ipc_call_duration_ms"
	CallsInflight      = "ipc_calls_inflight"
	RequestsTotal      = "ipc_requests_total"
	RequestErrorsTotal = "ipc_request_errors_total"
	BroadcastsTotal    = "ipc_broadcasts_total"
)

// Provider is the metrics sink interface used by the node.
type Provider interface {
	SetGauge(name string, value float64)
	IncCounter(name string, delta float64)
	Observe(name string, value float64)
}

// Noop discards all metrics. It is the default provider.
type Noop struct{}

func (Noop) SetGauge(string, float64)   {}
func (Noop) IncCounter(string, float64) {}
func (Noop) Observe(string, float64)    {}
