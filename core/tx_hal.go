package core

import "time"

// TxChannelConfig describes the transmitter channel the scheduler asks for
type TxChannelConfig struct {
	Pin          GPIOPin
	ResolutionHz uint32 // tick rate, TickResolutionHz for microsecond ticks
	QueueDepth   int    // maximum in-flight transmissions
	WithDMA      bool   // prefer a DMA-backed transfer mode
}

// TxEncoder converts symbols into the transmitter's native words.
type TxEncoder interface {
	// Encode appends the native representation of src to dst
	Encode(dst []uint32, src []Symbol) []uint32

	Close() error
}

// TxChannel is one allocated symbol transmitter. All methods except the
// registered completion callback run on the scheduler goroutine.
type TxChannel interface {
	// Enable starts the channel; enabling an enabled channel is not an error
	Enable() error

	// Transmit queues one pass over symbols. It never blocks; when QueueDepth
	// transmissions are already in flight it returns ErrQueueFull.
	// The channel keeps a reference to symbols until the pass completes.
	Transmit(enc TxEncoder, symbols []Symbol) error

	// OnTransmitDone registers fn to be called once per completed transmission.
	// fn may run in interrupt context and must not block.
	OnTransmitDone(fn func())

	// WaitAllDone waits up to timeout for in-flight transmissions to finish.
	// It never aborts a transmission.
	WaitAllDone(timeout time.Duration) error

	// Disable stops accepting transmissions
	Disable() error

	// Close releases the channel
	Close() error
}

// TxDriver allocates transmitter resources. Platform code provides the
// implementation (PIO on RP2040, a software emulator on the host).
type TxDriver interface {
	NewChannel(cfg TxChannelConfig) (TxChannel, error)
	NewEncoder() (TxEncoder, error)
}

// CopyEncoder passes symbol words through unchanged.
type CopyEncoder struct{}

// Encode implements TxEncoder
func (CopyEncoder) Encode(dst []uint32, src []Symbol) []uint32 {
	for _, s := range src {
		dst = append(dst, s.Word())
	}
	return dst
}

// Close implements TxEncoder
func (CopyEncoder) Close() error {
	return nil
}
