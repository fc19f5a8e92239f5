package core

import (
	"context"
	"sync"
)

// DeviceConfig wires the two outputs to hardware
type DeviceConfig struct {
	Scheduler SchedulerConfig
	FastPin   PWMPin
}

// Device composes the configuration store, the slow channel scheduler and
// the fast channel. ApplyUpdate and Status are the only operations the
// control surface needs; neither waits on the scheduler.
type Device struct {
	// applyMu keeps the fast channel hardware in store order
	applyMu sync.Mutex

	store  *ConfigStore
	notify *Notifier
	sched  *Scheduler
	fast   *FastChannel
	events *EventRing
	log    *Logger
}

// NewDevice creates a device with boot defaults: slow channel disabled,
// fast channel at its default frequency and off.
func NewDevice(cfg DeviceConfig, tx TxDriver, gpio GPIODriver, pwm PWMDriver, log *Logger) *Device {
	notify := NewNotifier()
	store := NewConfigStore(notify)
	events := NewEventRing()
	return &Device{
		store:  store,
		notify: notify,
		sched:  NewScheduler(cfg.Scheduler, store, notify, tx, gpio, log, events),
		fast:   NewFastChannel(pwm, cfg.FastPin, log),
		events: events,
		log:    log,
	}
}

// Run programs the fast channel with the current configuration and runs the
// slow channel scheduler until ctx is done.
func (d *Device) Run(ctx context.Context) error {
	d.applyMu.Lock()
	d.fast.Apply(d.store.Snapshot().Fast)
	d.applyMu.Unlock()
	return d.sched.Run(ctx)
}

// ApplyUpdate validates and stores u, reprograms the fast channel and signals
// the scheduler. The returned Snapshot is the configuration in force
// afterwards, including when u was rejected. Concurrent calls are applied
// one at a time so the fast channel always runs the stored parameters.
func (d *Device) ApplyUpdate(u Update) (Snapshot, error) {
	d.applyMu.Lock()
	defer d.applyMu.Unlock()

	snap, err := d.store.Apply(u)
	if err != nil {
		d.log.Warnf("update rejected: %v (rpm=%g pulses=%d pct=%d)", err, u.RPM, u.PulsesPerRev, u.PulsePct)
		return snap, err
	}
	d.fast.Apply(snap.Fast)
	d.events.Record(EvtConfigApply, uint32(snap.Gen), boolToU32(snap.Timing.Enabled))

	t := snap.Timing
	d.log.Infof("set rpm=%.3f pulses=%d -> freq=%.3f Hz, period=%d us, pulse=%d us, pause=%d us, enabled=%t",
		t.RPM, t.PulsesPerRev, t.FreqHz, t.PeriodUs(), t.PulseUs, t.PauseUs, t.Enabled)
	return snap, nil
}

// Status returns the current configuration snapshot
func (d *Device) Status() Snapshot {
	return d.store.Snapshot()
}

// State returns the slow channel scheduler state
func (d *Device) State() State {
	return d.sched.State()
}

// Events returns the recent scheduler events, oldest first
func (d *Device) Events() []Event {
	return d.events.Events()
}

// DumpEvents writes the event ring through w
func (d *Device) DumpEvents(w DebugWriter) {
	d.events.Dump(w)
}
