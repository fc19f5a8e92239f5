package sim

import (
	"sync"
	"time"

	"pulsegen/core"
)

// Edge is one recorded output run. At is the virtual time in ticks when
// the run started.
type Edge struct {
	At       uint64
	Level    bool
	Duration uint32
}

// Trace records what the simulated output pin did. It keeps the most
// recent Limit runs; older runs are discarded.
type Trace struct {
	mu    sync.Mutex
	limit int
	edges []Edge
	now   uint64 // virtual clock in ticks
	level bool

	high uint64 // total ticks spent high
	low  uint64
}

// DefaultTraceLimit bounds the runs kept by NewTrace(0)
const DefaultTraceLimit = 4096

// NewTrace creates a trace keeping up to limit runs
func NewTrace(limit int) *Trace {
	if limit <= 0 {
		limit = DefaultTraceLimit
	}
	return &Trace{limit: limit}
}

// recordSymbols appends the runs of one transmission
func (t *Trace) recordSymbols(symbols []core.Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var segs [2]core.Segment
	for _, s := range symbols {
		for _, seg := range s.Segments(segs[:0]) {
			t.appendLocked(seg.Level, uint32(seg.Duration))
		}
	}
}

// setLevel records a static level change, as a GPIO write would cause
func (t *Trace) setLevel(level bool) {
	t.mu.Lock()
	t.level = level
	t.mu.Unlock()
}

func (t *Trace) appendLocked(level bool, d uint32) {
	if n := len(t.edges); n > 0 {
		last := &t.edges[n-1]
		if last.Level == level && last.At+uint64(last.Duration) == t.now {
			last.Duration += d
			t.advanceLocked(level, d)
			return
		}
	}
	if len(t.edges) >= t.limit {
		copy(t.edges, t.edges[1:])
		t.edges = t.edges[:len(t.edges)-1]
	}
	t.edges = append(t.edges, Edge{At: t.now, Level: level, Duration: d})
	t.advanceLocked(level, d)
}

func (t *Trace) advanceLocked(level bool, d uint32) {
	t.now += uint64(d)
	t.level = level
	if level {
		t.high += uint64(d)
	} else {
		t.low += uint64(d)
	}
}

// Edges returns a copy of the recorded runs, oldest first
func (t *Trace) Edges() []Edge {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)
	return out
}

// Level returns the current pin level
func (t *Trace) Level() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// Duty returns the fraction of recorded ticks spent high
func (t *Trace) Duty() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.high+t.low == 0 {
		return 0
	}
	return float64(t.high) / float64(t.high+t.low)
}

// Elapsed returns the virtual time covered by transmissions
func (t *Trace) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.now) * time.Microsecond
}

// Reset clears the trace
func (t *Trace) Reset() {
	t.mu.Lock()
	t.edges = t.edges[:0]
	t.now, t.high, t.low = 0, 0, 0
	t.mu.Unlock()
}
