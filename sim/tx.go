// Package sim provides software stand-ins for the firmware's hardware
// drivers so the full device can run on a host. Transmissions are played out
// in scaled real time and recorded into a Trace.
package sim

import (
	"errors"
	"sync"
	"time"

	"pulsegen/core"
)

var ErrDrainTimeout = errors.New("sim: transmissions still in flight")

// TxStats summarizes a driver's lifetime activity
type TxStats struct {
	Channels     int // channels handed out
	AllocFails   int // NewChannel calls refused
	Transmitted  int // completed transmissions
	QueueFull    int // Transmit calls refused with ErrQueueFull
	Underruns    int // times a running channel's queue went empty and then refilled
	OpenChannels int
}

// TxDriver emulates the symbol transmitter. It implements core.TxDriver.
type TxDriver struct {
	mu    sync.Mutex
	trace *Trace
	scale float64

	dma          bool
	failChannels int
	failEncoders int
	stats        TxStats
}

// NewTxDriver creates a driver recording into trace. scale multiplies every
// tick's wall-clock duration: 1 plays in real time, 0.01 a hundred times faster.
func NewTxDriver(trace *Trace, scale float64) *TxDriver {
	if scale <= 0 {
		scale = 1
	}
	if trace == nil {
		trace = NewTrace(0)
	}
	return &TxDriver{trace: trace, scale: scale}
}

// Trace returns the trace transmissions are recorded into
func (d *TxDriver) Trace() *Trace {
	return d.trace
}

// SetDMAAvailable controls whether DMA-backed channels can be allocated
func (d *TxDriver) SetDMAAvailable(ok bool) {
	d.mu.Lock()
	d.dma = ok
	d.mu.Unlock()
}

// FailNext makes the next n channel and m encoder allocations fail
func (d *TxDriver) FailNext(channels, encoders int) {
	d.mu.Lock()
	d.failChannels = channels
	d.failEncoders = encoders
	d.mu.Unlock()
}

// Stats returns a copy of the driver counters
func (d *TxDriver) Stats() TxStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// NewChannel implements core.TxDriver
func (d *TxDriver) NewChannel(cfg core.TxChannelConfig) (core.TxChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failChannels > 0 {
		d.failChannels--
		d.stats.AllocFails++
		return nil, core.ErrChannelAlloc
	}
	if cfg.WithDMA && !d.dma {
		d.stats.AllocFails++
		return nil, core.ErrDMAUnavailable
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = core.DefaultQueueDepth
	}
	d.stats.Channels++
	d.stats.OpenChannels++

	ch := &txChannel{
		drv:  d,
		cfg:  cfg,
		jobs: make(chan []core.Symbol, cfg.QueueDepth),
		done: make(chan struct{}),
	}
	go ch.worker()
	return ch, nil
}

// NewEncoder implements core.TxDriver
func (d *TxDriver) NewEncoder() (core.TxEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failEncoders > 0 {
		d.failEncoders--
		return nil, core.ErrEncoderAlloc
	}
	return core.CopyEncoder{}, nil
}

func (d *TxDriver) count(fn func(s *TxStats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

// txChannel plays transmissions on a worker goroutine, one at a time
type txChannel struct {
	drv  *TxDriver
	cfg  core.TxChannelConfig
	jobs chan []core.Symbol
	done chan struct{}

	mu       sync.Mutex
	enabled  bool
	closed   bool
	inFlight int
	idle     bool // queue ran empty after at least one pass
	onDone   func()
}

func (c *txChannel) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	c.enabled = true
	return nil
}

func (c *txChannel) Transmit(enc core.TxEncoder, symbols []core.Symbol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.enabled {
		return core.ErrChannelClosed
	}
	if c.inFlight >= c.cfg.QueueDepth {
		c.drv.count(func(s *TxStats) { s.QueueFull++ })
		return core.ErrQueueFull
	}
	if c.idle {
		c.idle = false
		c.drv.count(func(s *TxStats) { s.Underruns++ })
	}
	c.inFlight++
	c.jobs <- symbols
	return nil
}

func (c *txChannel) OnTransmitDone(fn func()) {
	c.mu.Lock()
	c.onDone = fn
	c.mu.Unlock()
}

func (c *txChannel) WaitAllDone(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		n := c.inFlight
		c.mu.Unlock()
		if n == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrDrainTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *txChannel) Disable() error {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	return nil
}

func (c *txChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.enabled = false
	close(c.jobs)
	c.mu.Unlock()

	<-c.done
	c.drv.count(func(s *TxStats) { s.OpenChannels-- })
	return nil
}

func (c *txChannel) worker() {
	defer close(c.done)
	for symbols := range c.jobs {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			// released mid-queue: the pass never starts
			continue
		}

		c.drv.trace.recordSymbols(symbols)
		time.Sleep(c.passDuration(symbols))

		c.mu.Lock()
		c.inFlight--
		if c.inFlight == 0 && !c.closed {
			c.idle = true
		}
		fn := c.onDone
		c.mu.Unlock()

		c.drv.count(func(s *TxStats) { s.Transmitted++ })
		if fn != nil {
			fn()
		}
	}
	c.drv.trace.setLevel(false)
}

func (c *txChannel) passDuration(symbols []core.Symbol) time.Duration {
	var ticks uint64
	for _, s := range symbols {
		ticks += uint64(s.Duration0) + uint64(s.Duration1)
	}
	res := c.cfg.ResolutionHz
	if res == 0 {
		res = core.TickResolutionHz
	}
	d := float64(ticks) * float64(time.Second) / float64(res)
	return time.Duration(d * c.drv.scale)
}
