//go:build rp2040

package main

import (
	"machine"

	"pulsegen/core"
)

// pwmPeripheral is an interface for PWM hardware peripherals
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// RP2040PWMDriver implements core.PWMDriver on RP2040's 8 hardware PWM
// slices with 2 channels each. Both channels of a slice share one frequency.
type RP2040PWMDriver struct {
	// Key: pin number, Value: PWM channel
	channels map[uint32]uint8

	// Key: slice number (0-7), Value: PWM peripheral
	peripherals map[uint8]pwmPeripheral
}

// NewRP2040PWMDriver creates a new RP2040 PWM driver
func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{
		channels:    make(map[uint32]uint8),
		peripherals: make(map[uint8]pwmPeripheral),
	}
}

// ConfigureFrequency sets the slice period for pin and routes the pin to it
func (d *RP2040PWMDriver) ConfigureFrequency(pin core.PWMPin, freqHz uint32) error {
	if freqHz == 0 {
		return core.ErrInvalidTiming
	}
	pinNum := uint32(pin)

	// RP2040: GPIO pin N maps to slice (N >> 1) & 0x7, channel N & 1
	sliceNum := uint8((pinNum >> 1) & 0x7)

	pwm, exists := d.peripherals[sliceNum]
	if !exists {
		pwm = d.getPWMPeripheral(sliceNum)
		d.peripherals[sliceNum] = pwm
	}

	err := pwm.Configure(machine.PWMConfig{
		Period: 1e9 / uint64(freqHz),
	})
	if err != nil {
		return err
	}

	channel, err := pwm.Channel(machine.Pin(pinNum))
	if err != nil {
		return err
	}
	d.channels[pinNum] = channel
	return nil
}

// SetDutyCycle sets the duty for a pin, 0 (off) to core.FastDutyMax (on)
func (d *RP2040PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	pinNum := uint32(pin)

	channel, exists := d.channels[pinNum]
	if !exists {
		// Pin not configured
		return nil
	}
	pwm := d.peripherals[uint8((pinNum>>1)&0x7)]

	if value > core.FastDutyMax {
		value = core.FastDutyMax
	}
	top := pwm.Top()
	duty := uint32(uint64(value) * uint64(top) / core.FastDutyMax)
	pwm.Set(channel, duty)
	return nil
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
func (d *RP2040PWMDriver) getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	// TinyGo defines PWM0-PWM7 as global variables of type *pwmGroup
	switch sliceNum {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		// Should never happen with proper masking
		return machine.PWM0
	}
}
