package core

import (
	"sync/atomic"
	"time"
)

// Lock wait bounds
const (
	// SnapshotWait bounds status reads
	SnapshotWait = 100 * time.Millisecond
	// ReadWait bounds the scheduler's read before it drives hardware
	ReadWait = 50 * time.Millisecond
	// ApplyWait bounds the writer
	ApplyWait = 100 * time.Millisecond
)

// FastChannelParams configures the fixed hardware PWM output
type FastChannelParams struct {
	FreqHz  float64
	DutyPct int
	Enabled bool
}

// Fast channel bounds and boot defaults
const (
	MinFastFreqHz = 100.0
	MaxFastFreqHz = 100000.0

	DefaultFastFreqHz = 1000.0
	DefaultFastPct    = 10
)

// DefaultFastChannelParams returns the boot configuration: 1 kHz, 10 %, off
func DefaultFastChannelParams() FastChannelParams {
	return FastChannelParams{
		FreqHz:  DefaultFastFreqHz,
		DutyPct: DefaultFastPct,
	}
}

// Clamped limits frequency and duty to what the fast channel can produce
func (p FastChannelParams) Clamped() FastChannelParams {
	switch {
	case !(p.FreqHz >= MinFastFreqHz): // catches NaN
		p.FreqHz = MinFastFreqHz
	case p.FreqHz > MaxFastFreqHz:
		p.FreqHz = MaxFastFreqHz
	}
	p.DutyPct = clampInt(p.DutyPct, MinPulsePct, MaxPulsePct)
	return p
}

// Update is one requested configuration change. Every field is applied;
// callers fill missing fields from the current Snapshot first.
type Update struct {
	PulsesPerRev int
	RPM          float64
	PulsePct     int
	Enabled      bool
	Fast         FastChannelParams
}

// Snapshot is a consistent copy of the configuration. Gen increases by one
// with every successful Apply.
type Snapshot struct {
	Timing TimingParameters
	Fast   FastChannelParams
	Gen    uint64
}

// ConfigStore holds the authoritative configuration shared by the request
// handler and the scheduler. The lock is a one-slot semaphore so every
// acquisition can give up after a bounded wait; readers that give up fall
// back to the last published snapshot.
type ConfigStore struct {
	lock   chan struct{}
	notify *Notifier

	// guarded by lock
	timing TimingParameters
	fast   FastChannelParams
	gen    uint64

	published atomic.Pointer[Snapshot]
}

// NewConfigStore creates a store holding the boot defaults.
// notify may be nil when nothing consumes reconfigure signals.
func NewConfigStore(notify *Notifier) *ConfigStore {
	s := &ConfigStore{
		lock:   make(chan struct{}, 1),
		notify: notify,
		timing: DefaultTimingParameters(),
		fast:   DefaultFastChannelParams(),
	}
	s.publish()
	return s
}

func (s *ConfigStore) acquire(wait time.Duration) bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case s.lock <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (s *ConfigStore) release() {
	<-s.lock
}

// publish must be called with the lock held
func (s *ConfigStore) publish() Snapshot {
	snap := Snapshot{Timing: s.timing, Fast: s.fast, Gen: s.gen}
	s.published.Store(&snap)
	return snap
}

// Apply validates u and, on success, replaces the timing and fast channel
// parameters and raises the reconfigure signal, even when nothing changed.
// On a validation failure the stored configuration is untouched and the
// returned error is ErrInvalidTiming. The returned Snapshot is always the
// configuration in force after the call.
func (s *ConfigStore) Apply(u Update) (Snapshot, error) {
	timing, err := ComputeTiming(u.PulsesPerRev, u.RPM, u.PulsePct)
	if err != nil {
		return s.Snapshot(), err
	}
	timing.Enabled = u.Enabled

	if !s.acquire(ApplyWait) {
		return s.Snapshot(), ErrLockTimeout
	}
	s.timing = timing
	s.fast = u.Fast.Clamped()
	s.gen++
	snap := s.publish()
	s.release()

	if s.notify != nil {
		s.notify.Reconfigure()
	}
	return snap, nil
}

// Snapshot returns the current configuration for status queries
func (s *ConfigStore) Snapshot() Snapshot {
	snap, _ := s.ReadWithin(SnapshotWait)
	return snap
}

// Read returns the configuration the scheduler drives hardware from
func (s *ConfigStore) Read() Snapshot {
	snap, _ := s.ReadWithin(ReadWait)
	return snap
}

// ReadWithin reads under the lock, waiting at most wait for it. When the
// lock cannot be taken in time the last published snapshot is returned
// and locked is false.
func (s *ConfigStore) ReadWithin(wait time.Duration) (snap Snapshot, locked bool) {
	if !s.acquire(wait) {
		return *s.published.Load(), false
	}
	snap = Snapshot{Timing: s.timing, Fast: s.fast, Gen: s.gen}
	s.release()
	return snap, true
}
