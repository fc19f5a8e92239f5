//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"pulsegen/control"
	"pulsegen/core"
	"pulsegen/protocol"
	"pulsegen/targets/pio"
)

var (
	// Buffers for communication
	inputBuffer *protocol.FifoBuffer
	frames      *control.FrameServer

	// Debug counters
	requestsServed uint32
	msgerrors      uint32

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	if err := InitUSB(); err != nil {
		halt("usb init failed: " + err.Error())
	}

	logger := core.NewLogger(debugWriter(), core.LevelInfo, "pulsegen")
	logger.StartAsync(LogBuffer)

	dev := core.NewDevice(deviceConfig(), pio.NewTxDriver(), NewRPGPIODriver(), NewRP2040PWMDriver(), logger)

	display, err := NewStatusDisplay(dev.Status, dev.State)
	if err != nil {
		halt("display init failed: " + err.Error())
	}

	inputBuffer = protocol.NewFifoBuffer(USBBufferSize)
	frames = control.NewFrameServer(control.NewHandler(dev, logger))

	ctx := context.Background()
	go display.Run(ctx)
	go usbLoop()

	logger.Infof("boot: slow pin %d, fast pin %d, link protocol %s", SlowPin, FastPin, protocol.Version)
	if err := dev.Run(ctx); err != nil {
		halt("device stopped: " + err.Error())
	}
}

// debugWriter sends log lines to UART0 so they never mix with link frames
// on USB
func debugWriter() core.DebugWriter {
	err := machine.UART0.Configure(machine.UARTConfig{BaudRate: 115200})
	if err != nil {
		return nil
	}
	return func(s string) {
		machine.UART0.Write([]byte(s))
		machine.UART0.Write([]byte("\r\n"))
	}
}

// halt stops the firmware after a boot failure
func halt(msg string) {
	for {
		println("FATAL:", msg)
		time.Sleep(time.Second)
	}
}

// usbLoop reads USB bytes and answers complete frames
func usbLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			inputBuffer.Reset()
			// Restart the loop
			time.Sleep(100 * time.Millisecond)
			go usbLoop()
		}
	}()

	for {
		received := false
		for USBAvailable() > 0 && inputBuffer.Free() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				break
			}

			// Data after a disconnect starts a fresh session
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				consecutiveWriteFailures = 0
			}
			inputBuffer.Write([]byte{data})
			received = true
		}

		if received {
			requestsServed += uint32(frames.Process(inputBuffer, writeUSB))
			if inputBuffer.Free() == 0 {
				// No frame fits; drop the garbage
				msgerrors++
				inputBuffer.Reset()
			}
		}

		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB writes one reply frame, handling partial writes
func writeUSB(frame []byte) {
	written := 0
	for written < len(frame) {
		n, err := USBWriteBytes(frame[written:])
		if err != nil || n == 0 {
			// Write error or no progress - likely disconnect
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
}
