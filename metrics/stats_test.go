package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRecordCall(t *testing.T) {
	s := NewStats()
	s.RecordCall("echo", 10*time.Millisecond, true)
	s.RecordCall("echo", 30*time.Millisecond, true)
	s.RecordCall("echo", 20*time.Millisecond, false)

	st, ok := s.Method("echo")
	require.True(t, ok)
	assert.Equal(t, int64(3), st.Calls)
	assert.Equal(t, int64(1), st.Errors)
	assert.InDelta(t, 0.02, st.AvgTime, 1e-9)
	assert.InDelta(t, 0.01, st.MinTime, 1e-9)
	assert.InDelta(t, 0.03, st.MaxTime, 1e-9)
}

func TestStatsManyCalls(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 10000; i++ {
		s.RecordCall("echo", time.Duration(i)*time.Millisecond, i%100 != 0)
	}

	st, ok := s.Method("echo")
	require.True(t, ok)
	assert.Equal(t, int64(10000), st.Calls)
	assert.Equal(t, int64(100), st.Errors)
	assert.InDelta(t, 0.001, st.MinTime, 1e-9)
	assert.InDelta(t, 10.0, st.MaxTime, 1e-9)
	assert.InDelta(t, 5.0005, st.AvgTime, 1e-6)
}

func TestStatsUnknownMethod(t *testing.T) {
	s := NewStats()

	_, ok := s.Method("missing")
	assert.False(t, ok)
}

func TestStatsSummary(t *testing.T) {
	s := NewStats()
	s.RecordCall("echo", 10*time.Millisecond, true)
	s.RecordCall("add", 5*time.Millisecond, false)

	sum := s.Summary()
	assert.Equal(t, int64(2), sum.TotalCalls)
	assert.Equal(t, int64(1), sum.TotalErrors)
	assert.Len(t, sum.Methods, 2)
	assert.Contains(t, sum.Methods, "echo")
	assert.Contains(t, sum.Methods, "add")
	assert.GreaterOrEqual(t, sum.UptimeSeconds, 0.0)
}

func TestStatsReset(t *testing.T) {
	s := NewStats()
	s.RecordCall("echo", 10*time.Millisecond, true)
	s.Reset()

	sum := s.Summary()
	assert.Equal(t, int64(0), sum.TotalCalls)
	assert.Empty(t, sum.Methods)

	_, ok := s.Method("echo")
	assert.False(t, ok)
}

func TestPromProvider(t *testing.T) {
	p := NewProm()
	p.IncCounter(CallsTotal, 1)
	p.IncCounter(CallErrorsTotal, 1)
	p.SetGauge(CallsInflight, 3)
	p.Observe(CallDurationMs, 12.5)

	// unknown names are ignored
	p.IncCounter("unknown_metric", 1)
	p.SetGauge("unknown_metric", 1)
	p.Observe("unknown_metric", 1)

	require.NotNil(t, p.Handler())
}
