package statsd

import (
	"sync"
	"time"
)

// Sample is one metric recorded by a MemorySink.
type Sample struct {
	Kind  string
	Name  string
	Value float64
	Tags  map[string]string
}

// MemorySink records metrics in memory. Used by tests and by the admin CLI dry runs.
type MemorySink struct {
	mu      sync.Mutex
	samples []Sample
}

var _ Sink = (*MemorySink)(nil)

// Count records a counter sample.
func (m *MemorySink) Count(name string, value int64, tags map[string]string) {
	m.add(Sample{Kind: "c", Name: name, Value: float64(value), Tags: tags})
}

// Gauge records a gauge sample.
func (m *MemorySink) Gauge(name string, value float64, tags map[string]string) {
	m.add(Sample{Kind: "g", Name: name, Value: value, Tags: tags})
}

// Timing records a timing sample in milliseconds.
func (m *MemorySink) Timing(name string, value time.Duration, tags map[string]string) {
	m.add(Sample{Kind: "ms", Name: name, Value: float64(value) / float64(time.Millisecond), Tags: tags})
}

func (m *MemorySink) add(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

// Samples returns a copy of everything recorded so far.
func (m *MemorySink) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// Named returns the samples recorded under name.
func (m *MemorySink) Named(name string) []Sample {
	var out []Sample
	for _, s := range m.Samples() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
