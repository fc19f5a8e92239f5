// Package serial opens the USB-serial port carrying the control link.
package serial

import (
	"io"
	"time"
)

// Port is a serial port. Tests substitute a net.Pipe end.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate. USB CDC ignores it.
	Baud int `yaml:"baud"`

	// ReadTimeout bounds a single read (0 = blocking)
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

// DefaultConfig returns the configuration used by the pulse generator firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}
