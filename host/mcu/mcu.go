// Package mcu talks to the pulse generator firmware over the framed control
// link.
package mcu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"pulsegen/control"
	"pulsegen/host/serial"
	"pulsegen/protocol"
)

const (
	// DefaultTimeout bounds one request when the caller's context has no deadline
	DefaultTimeout = time.Second

	readRetry = 10 * time.Millisecond
)

var (
	ErrClosed   = errors.New("mcu: connection closed")
	ErrSeqInUse = errors.New("mcu: no free sequence number")
)

// RemoteError is an error reply from the firmware
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "mcu: " + e.Msg
}

// MCU represents a connection to the pulse generator
type MCU struct {
	port    serial.Port
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint8
	pending map[uint8]chan []byte
	err     error

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   int
}

// Connect opens the serial port described by cfg
func Connect(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	// Discard anything left over from a previous session
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	return New(port, DefaultTimeout), nil
}

// New starts a client on an open port. timeout bounds requests whose
// context has no deadline.
func New(port serial.Port, timeout time.Duration) *MCU {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m := &MCU{
		port:    port,
		timeout: timeout,
		pending: make(map[uint8]chan []byte),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Close stops the reader and closes the port
func (m *MCU) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		err = m.port.Close()
		<-m.done
	})
	return err
}

// Call sends one request and waits for the reply body
func (m *MCU) Call(ctx context.Context, cmd control.Command, body []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	seq, reply, err := m.register()
	if err != nil {
		return nil, err
	}
	defer m.unregister(seq)

	frame, err := protocol.AppendFrame(nil, seq, byte(cmd), body)
	if err != nil {
		return nil, err
	}
	m.writeMu.Lock()
	_, err = m.port.Write(frame)
	m.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send command %c: %w", cmd, err)
	}

	select {
	case b, ok := <-reply:
		if !ok {
			return nil, m.failure()
		}
		return b, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("command %c: %w", cmd, ctx.Err())
	}
}

// Submit applies an update and returns the resulting status
func (m *MCU) Submit(ctx context.Context, form url.Values) (control.StatusResponse, error) {
	var resp control.StatusResponse
	b, err := m.Call(ctx, control.CmdSubmit, []byte(form.Encode()))
	if err != nil {
		return resp, err
	}
	return resp, decodeReply(b, &resp)
}

// Status reads the current configuration
func (m *MCU) Status(ctx context.Context) (control.StatusResponse, error) {
	var resp control.StatusResponse
	b, err := m.Call(ctx, control.CmdStatus, nil)
	if err != nil {
		return resp, err
	}
	return resp, decodeReply(b, &resp)
}

// Events reads the scheduler event ring
func (m *MCU) Events(ctx context.Context) (control.EventsResponse, error) {
	var resp control.EventsResponse
	b, err := m.Call(ctx, control.CmdEvents, nil)
	if err != nil {
		return resp, err
	}
	return resp, decodeReply(b, &resp)
}

func decodeReply(b []byte, v interface{}) error {
	var e control.ErrorResponse
	if err := json.Unmarshal(b, &e); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	if e.Status == "error" {
		return &RemoteError{Msg: e.Msg}
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}

func (m *MCU) register() (uint8, chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, nil, m.err
	}
	for i := 0; i < 256; i++ {
		m.seq++
		if _, busy := m.pending[m.seq]; !busy {
			ch := make(chan []byte, 1)
			m.pending[m.seq] = ch
			return m.seq, ch, nil
		}
	}
	return 0, nil, ErrSeqInUse
}

func (m *MCU) unregister(seq uint8) {
	m.mu.Lock()
	if m.err == nil {
		delete(m.pending, seq)
	}
	m.mu.Unlock()
}

// Dropped returns the number of corrupt reply frames discarded
func (m *MCU) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *MCU) failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MCU) deliver(f protocol.Frame) {
	m.mu.Lock()
	ch, ok := m.pending[f.Seq]
	if ok {
		delete(m.pending, f.Seq)
	}
	m.mu.Unlock()
	if ok {
		ch <- append([]byte(nil), f.Body...)
	}
}

// fail closes every pending request with err
func (m *MCU) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.err = err
	for seq, ch := range m.pending {
		close(ch)
		delete(m.pending, seq)
	}
}

func (m *MCU) stopped() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

func (m *MCU) readLoop() {
	defer close(m.done)

	in := protocol.NewFifoBuffer(2 * protocol.FrameMax)
	var dec protocol.Decoder
	chunk := make([]byte, 256)

	for {
		n, err := m.port.Read(chunk[:min(len(chunk), in.Free())])
		if n > 0 {
			in.Write(chunk[:n])
			dec.Feed(in, m.deliver)
			m.mu.Lock()
			m.dropped = dec.Dropped
			m.mu.Unlock()
			if in.Free() == 0 {
				// A frame never fits; start over
				in.Reset()
				dec.Reset()
			}
		}

		if m.stopped() {
			m.fail(ErrClosed)
			return
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF) && n == 0:
			// Read timeout on a serial port
			time.Sleep(readRetry)
		case err != nil:
			m.fail(fmt.Errorf("mcu: read: %w", err))
			return
		}
	}
}
