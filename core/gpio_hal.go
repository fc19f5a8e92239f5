package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}

// ForceIdleLow returns a pin to plain GPIO output driven low. It is used after
// releasing a transmitter so the output never floats between epochs.
func ForceIdleLow(d GPIODriver, pin GPIOPin) error {
	if err := d.SetPin(pin, false); err != nil {
		return err
	}
	if err := d.ConfigureOutput(pin); err != nil {
		return err
	}
	return d.SetPin(pin, false)
}
