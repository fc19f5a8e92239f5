//go:build rp2040

package main

import (
	"machine"

	"pulsegen/core"
)

// RPGPIODriver implements core.GPIODriver for RP2040
type RPGPIODriver struct{}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

// ConfigureOutput configures a pin as a digital output. The pin is always
// reconfigured because the transmitter hands it to PIO while streaming.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machine.Pin(pin).Set(value)
	return nil
}
