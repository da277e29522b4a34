package obs

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects lightweight counters and per-strategy latency stats
// for one harness run.
type Metrics struct {
	lines    uint64
	accepted uint64
	rejected uint64

	mu         sync.RWMutex
	strategies map[string]*strategyStats
}

type strategyStats struct {
	failures uint64
	latency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// StrategySnapshot is a point-in-time view of one strategy.
type StrategySnapshot struct {
	Failures uint64
	Latency  LatencySnapshot
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Lines      uint64
	Accepted   uint64
	Rejected   uint64
	Strategies map[string]StrategySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{strategies: make(map[string]*strategyStats)}
}

// IncLine records one line read from the input.
func (m *Metrics) IncLine() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.lines, 1)
}

// IncAccepted records one parsed record.
func (m *Metrics) IncAccepted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.accepted, 1)
}

// IncRejected records one skipped line.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.rejected, 1)
}

// IncDecodeFailure records a sentinel written for strategy.
func (m *Metrics) IncDecodeFailure(strategy string) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.stats(strategy).failures, 1)
}

// ObserveDecode measures one decode call of strategy.
func (m *Metrics) ObserveDecode(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.stats(strategy).latency.Observe(d)
}

func (m *Metrics) stats(strategy string) *strategyStats {
	m.mu.RLock()
	s, ok := m.strategies[strategy]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.strategies[strategy]; ok {
		return s
	}
	s = &strategyStats{}
	m.strategies[strategy] = s
	return s
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	strategies := make(map[string]StrategySnapshot, len(m.strategies))
	for name, s := range m.strategies {
		strategies[name] = StrategySnapshot{
			Failures: atomic.LoadUint64(&s.failures),
			Latency:  s.latency.Snapshot(),
		}
	}
	m.mu.RUnlock()
	return Snapshot{
		Lines:      atomic.LoadUint64(&m.lines),
		Accepted:   atomic.LoadUint64(&m.accepted),
		Rejected:   atomic.LoadUint64(&m.rejected),
		Strategies: strategies,
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
