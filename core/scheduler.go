package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// State is a TransmissionScheduler state
type State uint8

const (
	StateIdle State = iota
	StateEnsureChannel
	StateStreaming
	StateReconfiguring
	StateDisabling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateEnsureChannel:
		return "ENSURE_CHANNEL"
	case StateStreaming:
		return "STREAMING"
	case StateReconfiguring:
		return "RECONFIGURING"
	case StateDisabling:
		return "DISABLING"
	}
	return "UNKNOWN"
}

// Scheduler tuning defaults
const (
	// DefaultSettleDelay keeps the output low between epochs long enough that
	// a driven actuator comes to rest before the new pattern starts
	DefaultSettleDelay = 5000 * time.Millisecond
	// DefaultDisabledPoll is how often Idle rechecks the enabled flag
	DefaultDisabledPoll = 500 * time.Millisecond
	// DefaultRetryDelay spaces resource allocation retries
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultDrainTimeout bounds the wait for in-flight transmissions
	DefaultDrainTimeout = 50 * time.Millisecond

	// DefaultKeepQueued transmissions stay queued so a successor is always
	// waiting when the current pass ends
	DefaultKeepQueued = 2
	// DefaultQueueDepth is the transmitter's hardware queue depth
	DefaultQueueDepth = 4
)

// SchedulerConfig holds the slow channel engine tuning
type SchedulerConfig struct {
	Pin          GPIOPin
	SettleDelay  time.Duration
	DisabledPoll time.Duration
	RetryDelay   time.Duration
	DrainTimeout time.Duration
	KeepQueued   int
	QueueDepth   int
	Capacity     int  // symbol capacity, at most MaxSymbols
	PreferDMA    bool // request a DMA-backed channel first
}

// DefaultSchedulerConfig returns the production tuning for pin
func DefaultSchedulerConfig(pin GPIOPin) SchedulerConfig {
	return SchedulerConfig{
		Pin:          pin,
		SettleDelay:  DefaultSettleDelay,
		DisabledPoll: DefaultDisabledPoll,
		RetryDelay:   DefaultRetryDelay,
		DrainTimeout: DefaultDrainTimeout,
		KeepQueued:   DefaultKeepQueued,
		QueueDepth:   DefaultQueueDepth,
		Capacity:     MaxSymbols,
		PreferDMA:    true,
	}
}

func (c *SchedulerConfig) normalize() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.KeepQueued <= 0 {
		c.KeepQueued = DefaultKeepQueued
	}
	if c.KeepQueued > c.QueueDepth {
		c.KeepQueued = c.QueueDepth
	}
	if c.Capacity <= 0 || c.Capacity > MaxSymbols {
		c.Capacity = MaxSymbols
	}
	if c.DisabledPoll <= 0 {
		c.DisabledPoll = DefaultDisabledPoll
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Scheduler is the slow channel engine. One goroutine runs it and is the
// only owner of the transmitter channel, its encoder and the symbol buffer.
// Other goroutines talk to it only through the ConfigStore and Notifier.
type Scheduler struct {
	cfg    SchedulerConfig
	store  *ConfigStore
	notify *Notifier
	tx     TxDriver
	gpio   GPIODriver
	log    *Logger
	events *EventRing

	state atomic.Uint32

	// owned by the Run goroutine
	ch     TxChannel
	enc    TxEncoder
	buf    []Symbol
	queued int
}

// NewScheduler creates a scheduler in the Idle state. log and events may be nil.
func NewScheduler(cfg SchedulerConfig, store *ConfigStore, notify *Notifier, tx TxDriver, gpio GPIODriver, log *Logger, events *EventRing) *Scheduler {
	cfg.normalize()
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		notify: notify,
		tx:     tx,
		gpio:   gpio,
		log:    log,
		events: events,
	}
}

// State returns the current state. Safe from any goroutine.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(next State) {
	prev := s.State()
	if prev == next {
		return
	}
	s.state.Store(uint32(next))
	s.events.Record(EvtStateChange, uint32(prev), uint32(next))
	s.log.Debugf("%s -> %s", prev, next)
}

// Run drives the state machine until ctx is done. On return the channel has
// been released and the output pin is low.
func (s *Scheduler) Run(ctx context.Context) error {
	s.forceLow()
	for {
		if err := s.step(ctx); err != nil {
			s.teardown()
			s.setState(StateIdle)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// step runs one state handler. It only returns an error when ctx is done.
func (s *Scheduler) step(ctx context.Context) error {
	switch s.State() {
	case StateIdle:
		return s.idle(ctx)
	case StateEnsureChannel:
		return s.ensureChannel(ctx)
	case StateStreaming:
		return s.stream(ctx)
	case StateReconfiguring:
		s.teardown()
		if err := sleepCtx(ctx, s.cfg.SettleDelay); err != nil {
			return err
		}
		s.setState(StateEnsureChannel)
	case StateDisabling:
		s.teardown()
		s.setState(StateIdle)
	}
	return ctx.Err()
}

func (s *Scheduler) idle(ctx context.Context) error {
	if _, err := s.notify.Wait(ctx, s.cfg.DisabledPoll); err != nil {
		return err
	}
	if s.store.Read().Timing.Enabled {
		s.setState(StateEnsureChannel)
	}
	return nil
}

// ensureChannel acquires every resource for a new epoch and primes the
// queue. Any failure releases what was acquired and retries after
// RetryDelay without leaving the state.
func (s *Scheduler) ensureChannel(ctx context.Context) error {
	// changes made while settling are folded into this read
	s.notify.Take()
	snap := s.store.Read()
	if !snap.Timing.Enabled {
		s.forceLow()
		s.setState(StateIdle)
		return nil
	}

	if err := s.allocate(); err != nil {
		s.log.Warnf("%v, retrying in %v", err, s.cfg.RetryDelay)
		return sleepCtx(ctx, s.cfg.RetryDelay)
	}

	t := snap.Timing
	symbols, truncated := BuildWaveform(t.PulsesPerRev, t.PulseUs, t.PauseUs, s.cfg.Capacity)
	s.events.Record(EvtBuilt, uint32(len(symbols)), boolToU32(truncated))
	if truncated {
		s.log.Warnf("%v: need %d symbols, have %d", ErrWaveformTruncated,
			RequiredSymbols(t.PulsesPerRev, t.PulseUs, t.PauseUs), len(symbols))
	}
	if len(symbols) == 0 {
		s.teardown()
		return sleepCtx(ctx, s.cfg.RetryDelay)
	}
	s.buf = symbols

	s.ch.OnTransmitDone(s.notify.Completed)
	if err := s.ch.Enable(); err != nil {
		s.log.Warnf("enable tx channel: %v", err)
		s.teardown()
		return sleepCtx(ctx, s.cfg.RetryDelay)
	}

	s.queued = 0
	s.fill()
	s.events.Record(EvtPrimed, uint32(s.queued), 0)
	if s.queued == 0 {
		s.log.Warnf("no transmission could be queued, retrying")
		s.teardown()
		return sleepCtx(ctx, s.cfg.RetryDelay)
	}

	s.log.Infof("streaming gen=%d: %d pulses/rev, pulse=%dus pause=%dus, %d symbols",
		snap.Gen, t.PulsesPerRev, t.PulseUs, t.PauseUs, len(symbols))
	s.setState(StateStreaming)
	return nil
}

// allocate obtains a channel, falling back from DMA to plain mode, then an encoder
func (s *Scheduler) allocate() error {
	cfg := TxChannelConfig{
		Pin:          s.cfg.Pin,
		ResolutionHz: TickResolutionHz,
		QueueDepth:   s.cfg.QueueDepth,
		WithDMA:      s.cfg.PreferDMA,
	}
	ch, err := s.tx.NewChannel(cfg)
	if err != nil && cfg.WithDMA {
		s.events.Record(EvtAllocFailed, 1, 0)
		s.log.Debugf("dma tx channel: %v, falling back", err)
		cfg.WithDMA = false
		ch, err = s.tx.NewChannel(cfg)
	}
	if err != nil {
		s.events.Record(EvtAllocFailed, 0, 0)
		return ErrChannelAlloc
	}

	enc, err := s.tx.NewEncoder()
	if err != nil {
		s.events.Record(EvtEncoderFail, 0, 0)
		ch.Close()
		return ErrEncoderAlloc
	}
	s.ch = ch
	s.enc = enc
	return nil
}

// fill tops the queue up to KeepQueued and returns how many were added.
// A full hardware queue is not an error; the next completion retries.
func (s *Scheduler) fill() int {
	added := 0
	for s.queued < s.cfg.KeepQueued {
		err := s.ch.Transmit(s.enc, s.buf)
		if err != nil {
			if err == ErrQueueFull {
				s.events.Record(EvtQueueFull, uint32(s.queued), 0)
			} else {
				s.log.Debugf("transmit: %v", err)
			}
			break
		}
		s.queued++
		added++
	}
	return added
}

func (s *Scheduler) stream(ctx context.Context) error {
	n, err := s.notify.Wait(ctx, s.cfg.DisabledPoll)
	if err != nil {
		return err
	}

	// reconfiguration wins over pending completions from the old buffer
	if n.Reconfigure {
		if s.store.Read().Timing.Enabled {
			s.setState(StateReconfiguring)
		} else {
			s.setState(StateDisabling)
		}
		return nil
	}

	done := int(n.Completions)
	if done > s.queued {
		done = s.queued
	}
	s.queued -= done
	added := s.fill()
	if n.Completions > 0 {
		s.events.Record(EvtRefill, n.Completions, uint32(added))
	}
	return nil
}

// teardown drains, releases the epoch's resources and forces the pin low
func (s *Scheduler) teardown() {
	if s.ch != nil {
		if err := s.ch.WaitAllDone(s.cfg.DrainTimeout); err != nil {
			s.events.Record(EvtDrainTimeout, uint32(s.queued), 0)
			s.log.Warnf("drain: %v", err)
		}
		if err := s.ch.Disable(); err != nil {
			s.log.Debugf("disable tx channel: %v", err)
		}
	}
	s.release()
	s.forceLow()
}

func (s *Scheduler) release() {
	if s.ch != nil {
		if err := s.ch.Close(); err != nil {
			s.log.Debugf("close tx channel: %v", err)
		}
		s.ch = nil
	}
	if s.enc != nil {
		s.enc.Close()
		s.enc = nil
	}
	s.buf = nil
	s.queued = 0
}

func (s *Scheduler) forceLow() {
	if s.gpio == nil {
		return
	}
	if err := ForceIdleLow(s.gpio, s.cfg.Pin); err != nil {
		s.log.Errorf("force pin %d low: %v", s.cfg.Pin, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
