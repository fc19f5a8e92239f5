//go:build rp2040

package pio

import (
	"errors"
	"machine"
	"runtime"
	"sync"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"pulsegen/core"
)

// buildTxProgram plays one segment word per pull. See Encoder for the word
// layout.
func buildTxProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	prog := []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 1: out pins, 1 (level)
		asm.Out(rp2pio.OutDestX, 31).Encode(),   // 2: out x, 31 (hold)
		// hold:
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(), // 3: jmp x--, 3
		// .wrap
	}
	if len(prog) != txProgramLen {
		panic("pio: transmit program length mismatch")
	}
	return prog
}

const (
	txPIOOrigin = 0 // Load at offset 0 for correct jump addresses

	// encodeChunk bounds the symbols encoded per FIFO burst
	encodeChunk = 32
)

var errDrainTimeout = errors.New("pio: transmissions still in flight")

// programs remembers the load offset of the program per PIO block
var programs struct {
	sync.Mutex
	offset [numPIO]uint8
	loaded [numPIO]bool
}

func loadProgram(p *rp2pio.PIO, pioNum uint8) (uint8, error) {
	programs.Lock()
	defer programs.Unlock()
	if programs.loaded[pioNum] {
		return programs.offset[pioNum], nil
	}
	offset, err := p.AddProgram(buildTxProgram(), txPIOOrigin)
	if err != nil {
		return 0, err
	}
	programs.offset[pioNum] = offset
	programs.loaded[pioNum] = true
	return offset, nil
}

// TxDriver hands out PIO state machines as transmit channels. It implements
// core.TxDriver.
type TxDriver struct{}

// NewTxDriver creates the PIO transmit driver
func NewTxDriver() *TxDriver {
	return &TxDriver{}
}

// NewEncoder implements core.TxDriver
func (d *TxDriver) NewEncoder() (core.TxEncoder, error) {
	return Encoder{}, nil
}

// NewChannel implements core.TxDriver. PIO has no DMA-backed mode here, so
// requests for one fail with ErrDMAUnavailable.
func (d *TxDriver) NewChannel(cfg core.TxChannelConfig) (core.TxChannel, error) {
	if cfg.WithDMA {
		return nil, core.ErrDMAUnavailable
	}
	if cfg.ResolutionHz != core.TickResolutionHz {
		return nil, core.ErrChannelAlloc
	}

	pioNum, smNum, ok := allocatePIO()
	if !ok {
		return nil, core.ErrChannelAlloc
	}

	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}
	sm := pioHW.StateMachine(smNum)
	if !sm.TryClaim() {
		releasePIO(pioNum, smNum)
		return nil, core.ErrChannelAlloc
	}

	offset, err := loadProgram(pioHW, pioNum)
	if err != nil {
		sm.Unclaim()
		releasePIO(pioNum, smNum)
		return nil, core.ErrChannelAlloc
	}

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 1
	}
	c := &txChannel{
		pioNum: pioNum,
		smNum:  smNum,
		sm:     sm,
		pin:    machine.Pin(cfg.Pin),
		offset: offset,
		queue:  make(chan transmission, depth),
		slots:  newPassSlots(depth),
	}
	if err := c.init(); err != nil {
		c.Close()
		return nil, core.ErrChannelAlloc
	}
	return c, nil
}

type transmission struct {
	enc     core.TxEncoder
	symbols []core.Symbol
}

// txChannel plays queued transmissions through one state machine. A feeder
// goroutine moves encoded words into the TX FIFO and reports a pass done
// once its last word is in the FIFO.
type txChannel struct {
	pioNum, smNum uint8
	sm            rp2pio.StateMachine
	pin           machine.Pin
	offset        uint8

	queue chan transmission
	slots *passSlots
	done  func()

	mu      sync.Mutex
	enabled bool
	stop    chan struct{}
	exited  chan struct{}
	closed  bool
}

func (c *txChannel) init() error {
	c.pin.Configure(machine.PinConfig{Mode: c.sm.PIO().PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(c.pin, 1)
	// Shift right so the level bit comes out first; explicit PULL
	cfg.SetOutShift(true, false, 32)
	cfg.SetFIFOJoin(rp2pio.FifoJoinTx)
	cfg.SetWrap(programWrap(c.offset))

	// One cycle per microsecond tick
	whole, frac, err := rp2pio.ClkDivFromPeriod(1e9/core.TickResolutionHz, uint32(machine.CPUFrequency()))
	if err != nil {
		return err
	}
	cfg.SetClkDivIntFrac(whole, frac)

	c.sm.Init(c.offset, cfg)
	c.sm.SetPindirsConsecutive(c.pin, 1, true)
	c.sm.SetPinsConsecutive(c.pin, 1, false)
	return nil
}

// Enable implements core.TxChannel
func (c *txChannel) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	if c.enabled {
		return nil
	}
	c.enabled = true
	c.stop = make(chan struct{})
	c.exited = make(chan struct{})
	c.sm.SetEnabled(true)
	go c.feeder(c.stop, c.exited)
	return nil
}

// Transmit implements core.TxChannel
func (c *txChannel) Transmit(enc core.TxEncoder, symbols []core.Symbol) error {
	c.mu.Lock()
	enabled := c.enabled
	c.mu.Unlock()
	if !enabled {
		return core.ErrChannelClosed
	}
	if !c.slots.acquire() {
		return core.ErrQueueFull
	}
	// acquire bounds the queue, so this never blocks
	c.queue <- transmission{enc: enc, symbols: symbols}
	return nil
}

// OnTransmitDone implements core.TxChannel
func (c *txChannel) OnTransmitDone(fn func()) {
	c.done = fn
}

// WaitAllDone implements core.TxChannel. The final segment may still be
// playing when it returns.
func (c *txChannel) WaitAllDone(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for c.slots.busy() || !c.sm.IsTxFIFOEmpty() {
		if time.Now().After(deadline) {
			return errDrainTimeout
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// Disable implements core.TxChannel. Queued passes are dropped and the
// state machine is halted.
func (c *txChannel) Disable() error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.enabled = false
	close(c.stop)
	exited := c.exited
	c.mu.Unlock()

	<-exited
drain:
	for {
		select {
		case <-c.queue:
			c.slots.release()
		default:
			break drain
		}
	}

	c.sm.SetEnabled(false)
	c.sm.ClearFIFOs()
	c.sm.Restart()
	c.sm.Jmp(c.offset, rp2pio.JmpAlways)
	c.sm.SetPinsConsecutive(c.pin, 1, false)
	return nil
}

// Close implements core.TxChannel
func (c *txChannel) Close() error {
	c.Disable()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.sm.Unclaim()
	releasePIO(c.pioNum, c.smNum)
	return nil
}

func (c *txChannel) feeder(stop, exited chan struct{}) {
	defer close(exited)
	words := make([]uint32, 0, 2*encodeChunk)
	for {
		select {
		case <-stop:
			return
		case t := <-c.queue:
			if !c.play(stop, t, words) {
				c.slots.release()
				return
			}
			c.slots.release()
			if c.done != nil {
				c.done()
			}
		}
	}
}

// play pushes one pass into the FIFO. It reports false when stopped midway.
func (c *txChannel) play(stop chan struct{}, t transmission, words []uint32) bool {
	for i := 0; i < len(t.symbols); i += encodeChunk {
		end := i + encodeChunk
		if end > len(t.symbols) {
			end = len(t.symbols)
		}
		words = t.enc.Encode(words[:0], t.symbols[i:end])
		for _, w := range words {
			for c.sm.IsTxFIFOFull() {
				select {
				case <-stop:
					return false
				default:
				}
				runtime.Gosched()
			}
			c.sm.TxPut(w)
		}
	}
	return true
}
