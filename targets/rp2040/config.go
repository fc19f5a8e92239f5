//go:build rp2040

package main

import (
	"machine"
	"time"

	"pulsegen/core"
)

// Pin map for a Raspberry Pi Pico
var (
	SlowPin = machine.GP2 // pulse train output
	FastPin = machine.GP3 // fast PWM output

	DisplaySDA = machine.GP4
	DisplaySCL = machine.GP5
)

const (
	DisplayAddress = 0x3C
	DisplayWidth   = 128
	DisplayHeight  = 64

	// DisplayRefresh is how often the status page is redrawn
	DisplayRefresh = 250 * time.Millisecond

	// USBBufferSize holds a couple of maximum-size frames
	USBBufferSize = 2048

	// LogBuffer is the async log queue depth
	LogBuffer = 16
)

// deviceConfig returns the engine tuning for the board
func deviceConfig() core.DeviceConfig {
	sc := core.DefaultSchedulerConfig(core.GPIOPin(SlowPin))
	// PIO has no DMA-backed mode; skip straight to the FIFO feeder
	sc.PreferDMA = false
	return core.DeviceConfig{
		Scheduler: sc,
		FastPin:   core.PWMPin(FastPin),
	}
}
