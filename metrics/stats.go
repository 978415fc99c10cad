package metrics

import (
	"sync"
	"time"
)

// Stats keeps per-method call statistics in process, independent of any
// external metrics backend. Only running aggregates are stored, so memory
// stays constant per method no matter how many calls are recorded. All
// methods are safe for concurrent use.
type Stats struct {
	mu      sync.Mutex
	methods map[string]*callRecord
	started time.Time
}

type callRecord struct {
	calls  int64
	errors int64
	total  float64
	min    float64
	max    float64
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{
		methods: make(map[string]*callRecord),
		started: time.Now(),
	}
}

// RecordCall records one call of the given method.
func (s *Stats) RecordCall(method string, duration time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.methods[method]
	if !ok {
		rec = &callRecord{}
		s.methods[method] = rec
	}

	secs := duration.Seconds()
	rec.calls++
	rec.total += secs
	if !success {
		rec.errors++
	}
	if rec.calls == 1 || secs < rec.min {
		rec.min = secs
	}
	if secs > rec.max {
		rec.max = secs
	}
}

// MethodStats describes the recorded calls of one method. Times are in
// seconds.
type MethodStats struct {
	Method  string  `json:"method"`
	Calls   int64   `json:"calls"`
	Errors  int64   `json:"errors"`
	AvgTime float64 `json:"avg_time"`
	MinTime float64 `json:"min_time"`
	MaxTime float64 `json:"max_time"`
}

// Method returns the statistics of a single method. The second return value
// reports whether any call of the method was recorded.
func (s *Stats) Method(method string) (MethodStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.methods[method]
	if !ok {
		return MethodStats{}, false
	}
	return rec.stats(method), true
}

func (r *callRecord) stats(method string) MethodStats {
	st := MethodStats{
		Method:  method,
		Calls:   r.calls,
		Errors:  r.errors,
		MinTime: r.min,
		MaxTime: r.max,
	}
	if r.calls > 0 {
		st.AvgTime = r.total / float64(r.calls)
	}
	return st
}

// Summary describes all recorded calls since start or the last Reset.
type Summary struct {
	UptimeSeconds float64                `json:"uptime_seconds"`
	TotalCalls    int64                  `json:"total_calls"`
	TotalErrors   int64                  `json:"total_errors"`
	Methods       map[string]MethodStats `json:"methods"`
}

// Summary returns the statistics of all recorded methods.
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		UptimeSeconds: time.Since(s.started).Seconds(),
		Methods:       make(map[string]MethodStats, len(s.methods)),
	}
	for method, rec := range s.methods {
		sum.TotalCalls += rec.calls
		sum.TotalErrors += rec.errors
		sum.Methods[method] = rec.stats(method)
	}
	return sum
}

// Reset drops all recorded statistics and restarts the uptime clock.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.methods = make(map[string]*callRecord)
	s.started = time.Now()
}
