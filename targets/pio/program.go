package pio

import "sync/atomic"

// txProgramLen is the instruction count of the transmit program
const txProgramLen = 4

// programWrap returns the wrap target and wrap top of the transmit program
// loaded at offset. The whole program loops.
func programWrap(offset uint8) (target, top uint8) {
	return offset, offset + txProgramLen - 1
}

// passSlots counts transmissions from Transmit until the feeder has pushed
// their last word. The pass being played still holds its slot.
type passSlots struct {
	depth int32
	used  atomic.Int32
}

func newPassSlots(depth int) *passSlots {
	if depth <= 0 {
		depth = 1
	}
	return &passSlots{depth: int32(depth)}
}

// acquire takes a slot and reports false when all are in use
func (s *passSlots) acquire() bool {
	if s.used.Add(1) > s.depth {
		s.used.Add(-1)
		return false
	}
	return true
}

func (s *passSlots) release() {
	s.used.Add(-1)
}

func (s *passSlots) busy() bool {
	return s.used.Load() > 0
}
