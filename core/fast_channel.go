package core

import "math"

// Fast channel duty resolution
const (
	FastDutyBits = 9
	FastDutyMax  = 1<<FastDutyBits - 1
)

// FastDuty converts a duty percentage to a 9-bit compare value.
// A disabled channel always gets zero.
func FastDuty(dutyPct int, enabled bool) PWMValue {
	if !enabled {
		return 0
	}
	pct := clampInt(dutyPct, MinPulsePct, MaxPulsePct)
	return PWMValue(math.Round(float64(FastDutyMax) * float64(pct) / 100))
}

// FastChannel drives the fixed-frequency hardware PWM output. It keeps no
// state between calls; Apply fully reprograms the timer every time.
type FastChannel struct {
	pwm PWMDriver
	pin PWMPin
	log *Logger
}

// NewFastChannel creates a controller for pin
func NewFastChannel(pwm PWMDriver, pin PWMPin, log *Logger) *FastChannel {
	return &FastChannel{pwm: pwm, pin: pin, log: log}
}

// Apply clamps p, reprograms the timer frequency and sets the duty.
// Driver failures are logged. It returns the clamped parameters.
func (f *FastChannel) Apply(p FastChannelParams) FastChannelParams {
	p = p.Clamped()
	freq := uint32(math.Round(p.FreqHz))
	if err := f.pwm.ConfigureFrequency(f.pin, freq); err != nil {
		f.log.Errorf("fast channel frequency %d Hz: %v", freq, err)
	}
	duty := FastDuty(p.DutyPct, p.Enabled)
	if err := f.pwm.SetDutyCycle(f.pin, duty); err != nil {
		f.log.Errorf("fast channel duty %d: %v", duty, err)
	}
	return p
}
