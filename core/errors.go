package core

// Error is a constant error value so sentinels can be declared as consts.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrInvalidTiming rejects an update whose RPM or derived frequency is not positive.
	ErrInvalidTiming = Error("invalid timing parameters")

	ErrLockTimeout = Error("config lock wait timed out")

	ErrChannelAlloc   = Error("tx channel allocation failed")
	ErrEncoderAlloc   = Error("tx encoder allocation failed")
	ErrDMAUnavailable = Error("dma-backed tx channel unavailable")
	ErrChannelClosed  = Error("tx channel closed")

	// ErrWaveformTruncated is logged when a waveform needs more symbols than MaxSymbols.
	ErrWaveformTruncated = Error("waveform truncated at symbol capacity")

	// ErrQueueFull is returned by a channel when all queue slots are in flight.
	ErrQueueFull = Error("tx queue full")
)
