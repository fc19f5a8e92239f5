package core

import (
	"errors"
	"sync"
	"time"
)

var errMock = errors.New("mock failure")

// mockTxChannel is a test implementation of TxChannel
type mockTxChannel struct {
	mu        sync.Mutex
	cfg       TxChannelConfig
	enabled   bool
	closed    bool
	inFlight  int
	transmits int
	lastLen   int
	onDone    func()
	waitErr   error
}

func (m *mockTxChannel) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	return nil
}

func (m *mockTxChannel) Transmit(enc TxEncoder, symbols []Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.enabled {
		return ErrChannelClosed
	}
	if m.inFlight >= m.cfg.QueueDepth {
		return ErrQueueFull
	}
	m.inFlight++
	m.transmits++
	m.lastLen = len(symbols)
	return nil
}

func (m *mockTxChannel) OnTransmitDone(fn func()) {
	m.mu.Lock()
	m.onDone = fn
	m.mu.Unlock()
}

func (m *mockTxChannel) WaitAllDone(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waitErr != nil {
		return m.waitErr
	}
	m.inFlight = 0
	return nil
}

func (m *mockTxChannel) Disable() error {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
	return nil
}

func (m *mockTxChannel) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// complete finishes n in-flight transmissions and fires the callback for each
func (m *mockTxChannel) complete(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		if m.inFlight > 0 {
			m.inFlight--
		}
		fn := m.onDone
		m.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (m *mockTxChannel) transmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transmits
}

func (m *mockTxChannel) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockEncoder struct {
	closed bool
}

func (e *mockEncoder) Encode(dst []uint32, src []Symbol) []uint32 {
	return CopyEncoder{}.Encode(dst, src)
}

func (e *mockEncoder) Close() error {
	e.closed = true
	return nil
}

// mockTxDriver is a test implementation of TxDriver
type mockTxDriver struct {
	mu           sync.Mutex
	rejectDMA    bool
	failChannels int // fail this many NewChannel calls
	failEncoders int // fail this many NewEncoder calls
	depth        int // overrides the requested queue depth when set
	requests     []TxChannelConfig
	channels     []*mockTxChannel
	encoders     []*mockEncoder
}

func (d *mockTxDriver) NewChannel(cfg TxChannelConfig) (TxChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, cfg)
	if d.failChannels > 0 {
		d.failChannels--
		return nil, errMock
	}
	if cfg.WithDMA && d.rejectDMA {
		return nil, ErrDMAUnavailable
	}
	if d.depth > 0 {
		cfg.QueueDepth = d.depth
	}
	ch := &mockTxChannel{cfg: cfg}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *mockTxDriver) NewEncoder() (TxEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failEncoders > 0 {
		d.failEncoders--
		return nil, errMock
	}
	enc := &mockEncoder{}
	d.encoders = append(d.encoders, enc)
	return enc, nil
}

func (d *mockTxDriver) lastChannel() *mockTxChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// MockGPIODriver is a test implementation of GPIODriver
type MockGPIODriver struct {
	mu         sync.Mutex
	pins       map[GPIOPin]bool
	configured map[GPIOPin]bool
}

func NewMockGPIODriver() *MockGPIODriver {
	return &MockGPIODriver{
		pins:       make(map[GPIOPin]bool),
		configured: make(map[GPIOPin]bool),
	}
}

func (m *MockGPIODriver) ConfigureOutput(pin GPIOPin) error {
	m.mu.Lock()
	m.configured[pin] = true
	m.mu.Unlock()
	return nil
}

func (m *MockGPIODriver) SetPin(pin GPIOPin, value bool) error {
	m.mu.Lock()
	m.pins[pin] = value
	m.mu.Unlock()
	return nil
}

func (m *MockGPIODriver) level(pin GPIOPin) (value, configured bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins[pin], m.configured[pin]
}

// MockPWMDriver is a test implementation of PWMDriver
type MockPWMDriver struct {
	mu    sync.Mutex
	freq  uint32
	duty  PWMValue
	calls int
	err   error
}

func (m *MockPWMDriver) ConfigureFrequency(pin PWMPin, freqHz uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.freq = freqHz
	return m.err
}

func (m *MockPWMDriver) SetDutyCycle(pin PWMPin, value PWMValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.duty = value
	return m.err
}
