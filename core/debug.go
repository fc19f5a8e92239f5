package core

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// LogLevel orders log messages by severity
type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLogLevel accepts the names printed by LogLevel.String, in any case
func ParseLogLevel(s string) (LogLevel, bool) {
	for l := LevelDebug; l <= LevelError; l++ {
		if strings.EqualFold(s, l.String()) {
			return l, true
		}
	}
	return LevelInfo, false
}

// Logger writes leveled messages through a platform-specific DebugWriter
// (println over USB on the firmware, a rotating log file on the host).
// A nil *Logger discards everything.
type Logger struct {
	write DebugWriter
	level LogLevel
	tag   string

	// Async debug output channel
	async chan string
}

// NewLogger creates a logger that drops messages below level
func NewLogger(w DebugWriter, level LogLevel, tag string) *Logger {
	return &Logger{write: w, level: level, tag: tag}
}

// StartAsync moves writes onto a background goroutine so callers on a timing
// critical path never block on the transport. Messages are dropped when the
// buffer is full.
func (l *Logger) StartAsync(buffer int) {
	if l == nil || l.async != nil {
		return
	}
	l.async = make(chan string, buffer)
	go l.outputWorker()
}

// outputWorker runs in background, drains the async channel
func (l *Logger) outputWorker() {
	for msg := range l.async {
		l.write(msg)
	}
}

// SetLevel changes the minimum level written
func (l *Logger) SetLevel(level LogLevel) {
	if l != nil {
		l.level = level
	}
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && l.write != nil && level >= l.level
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	msg := "[" + level.String() + "] " + l.tag + ": " + fmt.Sprintf(format, args...)
	if l.async == nil {
		l.write(msg)
		return
	}
	select {
	case l.async <- msg:
	default:
		// Channel full, drop message (non-blocking)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }

// Event type codes
const (
	EvtStateChange  = 1 // Value1 = from, Value2 = to
	EvtAllocFailed  = 2 // Value1 = 1 when DMA was requested
	EvtEncoderFail  = 3 // encoder allocation failed
	EvtBuilt        = 4 // Value1 = symbols, Value2 = 1 when truncated
	EvtPrimed       = 5 // Value1 = transmissions queued
	EvtRefill       = 6 // Value1 = completions, Value2 = enqueued
	EvtQueueFull    = 7 // enqueue rejected
	EvtDrainTimeout = 8 // in-flight work still running after the drain wait
	EvtConfigApply  = 9 // Value1 = generation
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

// Event captures one scheduler event for post-mortem analysis
type Event struct {
	Type   uint8
	Clock  uint32 // milliseconds since the ring was created
	Value1 uint32
	Value2 uint32
}

// Name returns the short upper-case name used in dumps
func (e Event) Name() string {
	switch e.Type {
	case EvtStateChange:
		return "STATE"
	case EvtAllocFailed:
		return "ALLOC_FAIL"
	case EvtEncoderFail:
		return "ENCODER_FAIL"
	case EvtBuilt:
		return "BUILT"
	case EvtPrimed:
		return "PRIMED"
	case EvtRefill:
		return "REFILL"
	case EvtQueueFull:
		return "QUEUE_FULL"
	case EvtDrainTimeout:
		return "DRAIN_TIMEOUT!"
	case EvtConfigApply:
		return "APPLY"
	}
	return "UNKNOWN"
}

func (e Event) String() string {
	if e.Type == EvtStateChange {
		return e.Name() + " " + State(e.Value1).String() + "->" + State(e.Value2).String() +
			" clock=" + utoa(e.Clock)
	}
	return e.Name() +
		" clock=" + utoa(e.Clock) +
		" v1=" + utoa(e.Value1) +
		" v2=" + utoa(e.Value2)
}

func utoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}

// EventRing is a fixed-size ring of the most recent events. Record never
// allocates and may be called from the scheduler loop at any rate.
type EventRing struct {
	mu    sync.Mutex
	start time.Time
	ring  [EventRingSize]Event
	head  uint8 // Next write position
	count uint8
}

// NewEventRing creates an empty ring whose clock starts now
func NewEventRing() *EventRing {
	return &EventRing{start: time.Now()}
}

// Record captures an event in the ring buffer
func (r *EventRing) Record(eventType uint8, value1, value2 uint32) {
	if r == nil {
		return
	}
	clock := uint32(time.Since(r.start) / time.Millisecond)
	r.mu.Lock()
	r.ring[r.head] = Event{Type: eventType, Clock: clock, Value1: value1, Value2: value2}
	r.head = (r.head + 1) % EventRingSize
	if r.count < EventRingSize {
		r.count++
	}
	r.mu.Unlock()
}

// Events returns the recorded events from oldest to newest
func (r *EventRing) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, r.count)
	start := (r.head + EventRingSize - r.count) % EventRingSize
	for i := uint8(0); i < r.count; i++ {
		out = append(out, r.ring[(start+i)%EventRingSize])
	}
	return out
}

// Dump writes the ring through w, oldest first
func (r *EventRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}
	w("[EVENTS] === Event Ring Dump ===")
	for _, e := range r.Events() {
		w("[EVENTS] " + e.String())
	}
	w("[EVENTS] === End Dump ===")
}

// Clear empties the ring
func (r *EventRing) Clear() {
	r.mu.Lock()
	r.ring = [EventRingSize]Event{}
	r.head = 0
	r.count = 0
	r.mu.Unlock()
}
