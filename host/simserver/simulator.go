package simserver

import (
	"context"

	"pulsegen/core"
	"pulsegen/host/config"
	"pulsegen/sim"
)

// Simulator is a pulse generator running on simulated hardware
type Simulator struct {
	Device *core.Device
	Tx     *sim.TxDriver
	GPIO   *sim.GPIO
	PWM    *sim.PWM

	slowPin core.GPIOPin
	fastPin core.PWMPin
}

// NewSimulator wires a device to simulated drivers. log may be nil.
func NewSimulator(cfg config.SimConfig, sc core.SchedulerConfig, log *core.Logger) *Simulator {
	trace := sim.NewTrace(cfg.TraceLimit)
	tx := sim.NewTxDriver(trace, cfg.TimeScale)
	tx.SetDMAAvailable(cfg.DMAAvailable)

	s := &Simulator{
		Tx:      tx,
		GPIO:    sim.NewGPIO(trace, sc.Pin),
		PWM:     sim.NewPWM(),
		slowPin: sc.Pin,
		fastPin: core.PWMPin(cfg.FastPin),
	}
	s.Device = core.NewDevice(core.DeviceConfig{Scheduler: sc, FastPin: s.fastPin}, tx, s.GPIO, s.PWM, log)
	return s
}

// Run runs the device until ctx is done
func (s *Simulator) Run(ctx context.Context) error {
	return s.Device.Run(ctx)
}

// Trace returns the slow channel output trace
func (s *Simulator) Trace() *sim.Trace {
	return s.Tx.Trace()
}

// Fast returns the programmed fast channel state
func (s *Simulator) Fast() sim.PWMState {
	return s.PWM.State(s.fastPin)
}
