package sim

import (
	"sync"

	"pulsegen/core"
)

// PWMState is the last programmed state of one PWM pin
type PWMState struct {
	FreqHz uint32
	Duty   core.PWMValue
}

// DutyFraction returns the duty as a fraction of full scale
func (s PWMState) DutyFraction() float64 {
	return float64(s.Duty) / float64(core.FastDutyMax)
}

// PWM implements core.PWMDriver by remembering what was programmed
type PWM struct {
	mu   sync.Mutex
	pins map[core.PWMPin]PWMState
}

func NewPWM() *PWM {
	return &PWM{pins: make(map[core.PWMPin]PWMState)}
}

func (p *PWM) ConfigureFrequency(pin core.PWMPin, freqHz uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.pins[pin]
	st.FreqHz = freqHz
	p.pins[pin] = st
	return nil
}

func (p *PWM) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	if value > core.FastDutyMax {
		value = core.FastDutyMax
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.pins[pin]
	st.Duty = value
	p.pins[pin] = st
	return nil
}

// State returns the programmed state of pin
func (p *PWM) State(pin core.PWMPin) PWMState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[pin]
}
