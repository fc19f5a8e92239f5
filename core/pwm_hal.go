package core

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is the duty cycle value (0 to FastDutyMax)
type PWMValue uint32

// PWMDriver is the abstract PWM interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type PWMDriver interface {
	// ConfigureFrequency reprograms the timer driving pin to freqHz
	ConfigureFrequency(pin PWMPin, freqHz uint32) error

	// SetDutyCycle sets the duty for a pin
	// value: 0 (fully off) to FastDutyMax (fully on)
	SetDutyCycle(pin PWMPin, value PWMValue) error
}
