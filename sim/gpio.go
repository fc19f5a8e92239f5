package sim

import (
	"sync"

	"pulsegen/core"
)

// GPIO implements core.GPIODriver. Writes to the traced pin are mirrored
// into the trace so a forced idle level shows up next to transmissions.
type GPIO struct {
	mu      sync.Mutex
	levels  map[core.GPIOPin]bool
	outputs map[core.GPIOPin]bool
	traced  core.GPIOPin
	trace   *Trace
}

// NewGPIO creates a GPIO bank mirroring pin into trace. trace may be nil.
func NewGPIO(trace *Trace, pin core.GPIOPin) *GPIO {
	return &GPIO{
		levels:  make(map[core.GPIOPin]bool),
		outputs: make(map[core.GPIOPin]bool),
		traced:  pin,
		trace:   trace,
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	g.outputs[pin] = true
	g.mu.Unlock()
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	g.levels[pin] = value
	g.mu.Unlock()
	if pin == g.traced && g.trace != nil {
		g.trace.setLevel(value)
	}
	return nil
}

// Level returns the last written level and whether pin is an output
func (g *GPIO) Level(pin core.GPIOPin) (high, output bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin], g.outputs[pin]
}
